// Package logger provee el logger estructurado (zap) de trustgate.
//
// Uso típico:
//
//	logger.Init(logger.Config{Env: "prod", Level: "info", ServiceName: "trustgate"})
//	defer logger.Sync()
//
//	log := logger.Named("session")
//	log.Info("session created", logger.UserEmail(email), logger.SessionID(id))
//
// En handlers HTTP el middleware inyecta un logger con request_id en el
// contexto; recuperarlo con logger.From(ctx).
package logger
