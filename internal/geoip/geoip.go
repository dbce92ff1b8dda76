// Package geoip maps client addresses to a country and city for session
// listings. A Resolver without a database answers every lookup with
// empty strings.
package geoip

import (
	"fmt"
	"net"
	"strings"

	"github.com/oschwald/maxminddb-golang"
)

type Resolver struct {
	db *maxminddb.Reader
}

type cityRecord struct {
	Country struct {
		ISOCode string `maxminddb:"iso_code"`
	} `maxminddb:"country"`
	City struct {
		Names map[string]string `maxminddb:"names"`
	} `maxminddb:"city"`
}

// Open loads a MaxMind City or Country database. An empty path yields a
// disabled Resolver.
func Open(path string) (*Resolver, error) {
	if path == "" {
		return &Resolver{}, nil
	}
	db, err := maxminddb.Open(path)
	if err != nil {
		return &Resolver{}, fmt.Errorf("open geoip database %s: %w", path, err)
	}
	return &Resolver{db: db}, nil
}

func (r *Resolver) Enabled() bool {
	return r != nil && r.db != nil
}

func routable(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() || ip.IsLinkLocalUnicast())
}

// Lookup returns the ISO country code and English city name of ipStr.
func (r *Resolver) Lookup(ipStr string) (country, city string) {
	if !r.Enabled() {
		return "", ""
	}
	ip := net.ParseIP(strings.TrimSpace(ipStr))
	if ip == nil || !routable(ip) {
		return "", ""
	}
	var rec cityRecord
	if err := r.db.Lookup(ip, &rec); err != nil {
		return "", ""
	}
	return rec.Country.ISOCode, rec.City.Names["en"]
}

func (r *Resolver) Close() error {
	if !r.Enabled() {
		return nil
	}
	return r.db.Close()
}
