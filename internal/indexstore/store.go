// Package indexstore implements the Index Reconciler (orig §4.4): it takes
// the sections a scan produced for one file and reconciles them against a
// backing SQL store, preserving prior "updated" timestamps where the
// content provably hasn't changed and replacing everything else atomically.
package indexstore

import (
	"context"
	"time"
)

// ReconcileOptions controls one file's reconciliation.
type ReconcileOptions struct {
	// NoUpdate skips the preservation lookup and the delete phase entirely;
	// rows are only inserted. Intended for bulk initial loads (orig §4.4
	// "no-update mode").
	NoUpdate bool
	// ScanTime stamps every row's "scanned" column.
	ScanTime time.Time
}

// Store reconciles one file's Rows against a backend (orig §4.4). A Store
// implementation owns its schema, its connection lifecycle, and the
// atomicity of a single file's delete+insert.
type Store interface {
	// Reconcile replaces the prior rows for filename (and any versioned
	// siblings matched by prefix) with rows, in one atomic transaction,
	// applying the preservation rule unless opts.NoUpdate is set.
	Reconcile(ctx context.Context, filename string, rows []Row, opts ReconcileOptions) error
	Close() error
}

// PriorRow is the subset of a previously-stored row a Store needs in order
// to apply the preservation rule (orig §4.4 "Preservation rule").
type PriorRow struct {
	Network, Station, Location, Channel string
	PubVersion                          int
	Hash                                string
	Updated                             time.Time
}

// preservationKey identifies the tuple orig §4.4 matches prior rows on:
// "(network, station, location, channel, pub_version, digest)".
func preservationKey(network, station, location, channel string, pubVersion int, hash string) string {
	return network + "\x00" + station + "\x00" + location + "\x00" + channel + "\x00" +
		itoa(pubVersion) + "\x00" + hash
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// ApplyPreservation mutates rows in place, carrying forward a prior row's
// Updated timestamp wherever the preservation key matches (orig §4.4: "if a
// new section's (network, station, location, channel, pub_version, digest)
// matches a prior row, keep the prior row's updated timestamp; otherwise
// use the file's modification time").
//
// When more than one prior row shares a key — two superseded scans of the
// same content, say — the last one in priors wins; see DESIGN.md Open
// Question 2.
func ApplyPreservation(rows []Row, priors []PriorRow) {
	if len(priors) == 0 {
		return
	}
	preserved := make(map[string]time.Time, len(priors))
	for _, p := range priors {
		preserved[preservationKey(p.Network, p.Station, p.Location, p.Channel, p.PubVersion, p.Hash)] = p.Updated
	}
	for i := range rows {
		r := &rows[i]
		key := preservationKey(r.Network, r.Station, r.Location, r.Channel, r.PubVersion, r.Hash)
		if updated, ok := preserved[key]; ok {
			r.Updated = updated
		}
	}
}
