// Package fingerprint deriva una identidad de dispositivo determinística
// a partir de identificadores de hardware locales.
//
// La licencia queda ligada al hash completo; si algún identificador no es
// legible el servicio cae a un subconjunto reducido y marca el fingerprint
// como degradado, para que el validador de licencia aplique la política de
// comparación laxa (reduced-hash contra reduced-hash).
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"sort"
	"strings"
)

// Fingerprint es el resultado de una lectura de hardware.
type Fingerprint struct {
	// Hash del set completo de identificadores (hex).
	Hash string

	// ReducedHash del subconjunto mínimo (MAC + hostname), siempre
	// calculado. Es lo que se compara cuando Degraded es true.
	ReducedHash string

	// Degraded indica que uno o más identificadores no se pudieron leer.
	Degraded bool

	// Components lista los nombres de identificadores que participaron,
	// para diagnóstico (nunca los valores).
	Components []string
}

// Collector lee un identificador de hardware. Retorna error si no es legible.
type Collector struct {
	Name string
	// Reduced marca los identificadores que integran el subconjunto mínimo.
	Reduced bool
	Read    func() (string, error)
}

// Service deriva fingerprints. Los collectors son inyectables para tests.
type Service struct {
	collectors []Collector
}

// New crea el servicio con los collectors por defecto del host.
func New() *Service {
	return &Service{collectors: defaultCollectors()}
}

// NewWithCollectors crea el servicio con collectors explícitos.
func NewWithCollectors(cs []Collector) *Service {
	return &Service{collectors: cs}
}

// Fingerprint lee los identificadores y deriva ambos hashes.
// Determinístico: el mismo hardware produce siempre el mismo resultado,
// porque los valores se ordenan por nombre de collector antes de hashear.
func (s *Service) Fingerprint() (Fingerprint, error) {
	type reading struct {
		name    string
		value   string
		reduced bool
	}

	var (
		readings []reading
		degraded bool
	)
	for _, c := range s.collectors {
		v, err := c.Read()
		v = strings.TrimSpace(v)
		if err != nil || v == "" {
			degraded = true
			continue
		}
		readings = append(readings, reading{name: c.Name, value: v, reduced: c.Reduced})
	}
	if len(readings) == 0 {
		return Fingerprint{}, fmt.Errorf("fingerprint: no hardware identifiers readable")
	}

	sort.Slice(readings, func(i, j int) bool { return readings[i].name < readings[j].name })

	var full, reduced []string
	var names []string
	for _, r := range readings {
		part := r.name + "=" + r.value
		full = append(full, part)
		names = append(names, r.name)
		if r.reduced {
			reduced = append(reduced, part)
		}
	}
	if len(reduced) == 0 {
		// sin subconjunto mínimo legible no hay matching degradado posible
		return Fingerprint{}, fmt.Errorf("fingerprint: reduced identifier set unreadable")
	}

	return Fingerprint{
		Hash:        hashParts(full),
		ReducedHash: hashParts(reduced),
		Degraded:    degraded,
		Components:  names,
	}, nil
}

func hashParts(parts []string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

// defaultCollectors lee MAC primaria, hostname, machine-id y board serial.
func defaultCollectors() []Collector {
	return []Collector{
		{Name: "mac", Reduced: true, Read: primaryMAC},
		{Name: "hostname", Reduced: true, Read: os.Hostname},
		{Name: "machine_id", Read: fileCollector("/etc/machine-id")},
		{Name: "board_serial", Read: fileCollector("/sys/class/dmi/id/board_serial")},
		{Name: "product_uuid", Read: fileCollector("/sys/class/dmi/id/product_uuid")},
	}
}

// primaryMAC retorna la MAC de la primera interfaz física no-loopback,
// ordenando por nombre para que el resultado sea estable entre reinicios.
func primaryMAC() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", err
	}
	sort.Slice(ifaces, func(i, j int) bool { return ifaces[i].Name < ifaces[j].Name })
	for _, it := range ifaces {
		if it.Flags&net.FlagLoopback != 0 {
			continue
		}
		if len(it.HardwareAddr) == 0 {
			continue
		}
		return it.HardwareAddr.String(), nil
	}
	return "", fmt.Errorf("no non-loopback interface with MAC")
}

func fileCollector(path string) func() (string, error) {
	return func() (string, error) {
		b, err := os.ReadFile(path)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
