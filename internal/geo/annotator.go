package geo

import (
	"net"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/oschwald/geoip2-golang"

	"proxysieve/internal/domain"
)

// Annotator adds country information to accepted records from a local
// GeoLite2 Country database. It is strictly optional: a missing or broken
// database disables annotation instead of failing the run.
type Annotator struct {
	reader *geoip2.Reader
}

func NewAnnotator(dbPath string) *Annotator {
	if dbPath == "" {
		return &Annotator{}
	}

	reader, err := geoip2.Open(dbPath)
	if err != nil {
		log.Warn("GeoLite database unavailable, geo annotation disabled",
			"path", dbPath, "error", err)
		return &Annotator{}
	}
	return &Annotator{reader: reader}
}

func (a *Annotator) Enabled() bool {
	return a.reader != nil
}

// Annotate fills in Country for every accepted record. Lookup failures leave
// the field empty.
func (a *Annotator) Annotate(records []domain.AcceptanceRecord) {
	if a.reader == nil {
		return
	}

	for i := range records {
		if !records[i].Accepted {
			continue
		}

		host, _, found := strings.Cut(records[i].Address, ":")
		if !found {
			continue
		}
		ip := net.ParseIP(host)
		if ip == nil {
			continue
		}

		country, err := a.reader.Country(ip)
		if err != nil || country == nil {
			continue
		}
		records[i].Country = country.Country.Names["en"]
	}
}

func (a *Annotator) Close() {
	if a.reader != nil {
		_ = a.reader.Close()
		a.reader = nil
	}
}
