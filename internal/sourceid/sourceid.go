// Package sourceid decomposes miniSEED source identifiers into the
// network/station/location/channel tuple the backing stores key rows on.
package sourceid

import (
	"fmt"
	"strings"
)

// ID is a decomposed source identifier.
type ID struct {
	Network  string
	Station  string
	Location string
	Channel  string
}

// String reassembles the canonical underscore-joined form.
func (id ID) String() string {
	return strings.Join([]string{id.Network, id.Station, id.Location, id.Channel}, "_")
}

// Parse decomposes a source_id of the form NET_STA_LOC_CHAN. Location may be
// empty (two adjacent underscores). A source_id that does not split into
// exactly four fields is an integrity error per orig §4.5: "parse source_id
// into (network, station, location, channel) tuples; failure aborts the file."
func Parse(raw string) (ID, error) {
	parts := strings.Split(raw, "_")
	if len(parts) != 4 {
		return ID{}, fmt.Errorf("sourceid: %q does not decompose into network_station_location_channel", raw)
	}
	return ID{
		Network:  parts[0],
		Station:  parts[1],
		Location: parts[2],
		Channel:  parts[3],
	}, nil
}
