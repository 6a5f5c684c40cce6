package gateway

import (
	"strconv"
	"strings"
	"time"
)

// Envelope kinds pushed to stream clients.
const (
	KindSignal     = "signal"
	KindComparison = "comparison"
	KindTrade      = "trade"
	KindRejection  = "rejection"
)

// channelOf names the replay/filter channel of an envelope.
func channelOf(kind, symbol string) string {
	return kind + ":" + strings.ToUpper(symbol)
}

// buildEnvelope hand-crafts the envelope JSON:
// {"type":"signal","symbol":"BTCUSDT","data":{...},"ts":"...","seq":N}
// kind and symbol are plain identifiers and data must already be JSON.
func buildEnvelope(kind, symbol string, data []byte, now time.Time, seq int64) []byte {
	buf := make([]byte, 0, len(kind)+len(symbol)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","symbol":"`...)
	buf = append(buf, strings.ToUpper(symbol)...)
	buf = append(buf, `","data":`...)
	buf = append(buf, data...)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, '}')
	return buf
}
