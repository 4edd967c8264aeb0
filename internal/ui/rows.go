package ui

import (
	"fmt"
	"strconv"
	"time"

	"airwatch.klederson.com/internal/hwaddr"
	"airwatch.klederson.com/internal/registry"
)

// Row is one registry record flattened for display.
type Row struct {
	Kind      registry.Kind
	Key       string // stable identity used for selection and history
	Title     string
	Addr      string
	RSSI      int8
	Channel   uint8
	Tag       string
	LastSeen  time.Time
	TimesSeen uint32
	Detected  bool
	Extra     []Field
}

// Field is a labelled value in the detail panel.
type Field struct {
	Label string
	Value string
}

func addrOrDash(a hwaddr.Addr) string {
	if a.IsZero() {
		return "-"
	}
	return a.String()
}

// NetworkRow flattens a network record.
func NetworkRow(n registry.Network) Row {
	title := n.SSID
	if title == "" {
		title = "<hidden>"
	}
	return Row{
		Kind:      registry.KindNetworks,
		Key:       "n/" + n.SSID + "/" + n.BSSID.String(),
		Title:     title,
		Addr:      addrOrDash(n.BSSID),
		RSSI:      n.RSSI,
		Channel:   n.Channel,
		Tag:       n.Role.String(),
		LastSeen:  n.LastSeen,
		TimesSeen: n.TimesSeen,
		Extra:     []Field{{"Role", n.Role.String()}},
	}
}

// StationRow flattens a station record.
func StationRow(s registry.Station) Row {
	return Row{
		Kind:      registry.KindStations,
		Key:       "s/" + s.Addr.String(),
		Title:     s.Addr.String(),
		Addr:      s.Addr.String(),
		RSSI:      s.RSSI,
		Channel:   s.Channel,
		Tag:       "STA",
		LastSeen:  s.LastSeen,
		TimesSeen: s.TimesSeen,
		Extra:     []Field{{"BSSID", addrOrDash(s.BSSID)}},
	}
}

// DeviceRow flattens a BLE device record.
func DeviceRow(d registry.Device) Row {
	title := d.Name
	if title == "" {
		title = d.Addr.String()
	}
	addrType := "random"
	if d.Public {
		addrType = "public"
	}
	return Row{
		Kind:      registry.KindDevices,
		Key:       "b/" + d.Addr.String(),
		Title:     title,
		Addr:      d.Addr.String(),
		RSSI:      d.RSSI,
		Tag:       "BLE",
		LastSeen:  d.LastSeen,
		TimesSeen: d.TimesSeen,
		Extra:     []Field{{"Address", addrType}},
	}
}

// Columns returns the table headers for kind.
func Columns(k registry.Kind) []string {
	switch k {
	case registry.KindNetworks:
		return []string{"SSID", "BSSID", "RSSI", "CH", "ROLE", "SEEN", "LAST"}
	case registry.KindStations:
		return []string{"ADDRESS", "BSSID", "RSSI", "CH", "SEEN", "LAST"}
	}
	return []string{"ADDRESS", "NAME", "RSSI", "TYPE", "SEEN", "LAST"}
}

// Cells returns the table cells of r in Columns order.
func (r Row) Cells() []string {
	rssi := fmt.Sprintf("%d", r.RSSI)
	seen := strconv.FormatUint(uint64(r.TimesSeen), 10)
	last := "-"
	if !r.LastSeen.IsZero() {
		last = r.LastSeen.Format(time.DateTime)
	}
	switch r.Kind {
	case registry.KindNetworks:
		return []string{r.Title, r.Addr, rssi, strconv.Itoa(int(r.Channel)), r.Tag, seen, last}
	case registry.KindStations:
		return []string{r.Addr, r.Extra[0].Value, rssi, strconv.Itoa(int(r.Channel)), seen, last}
	}
	name := r.Title
	if name == r.Addr {
		name = ""
	}
	return []string{r.Addr, name, rssi, r.Extra[0].Value, seen, last}
}
