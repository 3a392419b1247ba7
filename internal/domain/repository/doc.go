// Package repository define las interfaces de repositorio de dominio.
//
// Estas interfaces representan contratos de negocio, independientes del
// almacenamiento subyacente (PostgreSQL, memoria).
//
// Las implementaciones concretas viven en internal/store/adapters/.
//
// Convenciones:
//   - Context siempre es el primer parámetro
//   - Errores de dominio están en errors.go
//   - Operaciones check-and-act (consumo de backup codes, eviction de
//     sesiones) son atómicas a nivel de repositorio: el adapter resuelve
//     la carrera en una sola sentencia / bajo un solo lock, nunca el caller.
package repository
