package pipeline

import (
	"strconv"
	"strings"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
)

// acceptedEncoding is one entry of a parsed Accept-Encoding header.
type acceptedEncoding struct {
	enc tiledata.Encoding
	q   float64
}

// negotiateEncoding chooses the final encoding per spec §4.E step 6: the
// highest-preference encoding from Accept-Encoding that is supported,
// defaulting to gzip for vector tiles when acceptable, else identity.
// Raster payloads are never recompressed above their natural encoding.
// Returns tiledata.ErrUnsupportedEncoding when the client rejects every
// encoding this server can produce, including identity (spec §6).
func negotiateEncoding(acceptHeader string, media tiledata.Media) (tiledata.Encoding, error) {
	if !tiledata.IsVector(media) {
		return tiledata.Identity, nil
	}

	accepted := parseAcceptEncoding(acceptHeader)
	if len(accepted) == 0 {
		return tiledata.Gzip, nil
	}

	best := tiledata.Identity
	bestQ := -1.0
	gzipRejected := false
	identityRejected := false
	for _, a := range accepted {
		if a.enc == tiledata.Gzip && a.q <= 0 {
			gzipRejected = true
		}
		if a.enc == tiledata.Identity && a.q <= 0 {
			identityRejected = true
		}
		if a.q <= 0 {
			continue
		}
		if a.q > bestQ {
			best, bestQ = a.enc, a.q
		}
	}
	if bestQ < 0 {
		if identityRejected {
			return tiledata.Identity, tiledata.ErrUnsupportedEncoding
		}
		if gzipRejected {
			return tiledata.Identity, nil
		}
		return tiledata.Gzip, nil
	}
	return best, nil
}

func parseAcceptEncoding(header string) []acceptedEncoding {
	if header == "" {
		return nil
	}
	var out []acceptedEncoding
	for _, part := range strings.Split(header, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, q := splitQValue(part)
		enc, ok := parseEncodingName(name)
		if !ok {
			continue
		}
		out = append(out, acceptedEncoding{enc: enc, q: q})
	}
	return out
}

func splitQValue(part string) (name string, q float64) {
	q = 1.0
	segs := strings.Split(part, ";")
	name = strings.TrimSpace(segs[0])
	for _, seg := range segs[1:] {
		seg = strings.TrimSpace(seg)
		if strings.HasPrefix(seg, "q=") {
			if v, err := strconv.ParseFloat(strings.TrimPrefix(seg, "q="), 64); err == nil {
				q = v
			}
		}
	}
	return name, q
}

func parseEncodingName(name string) (tiledata.Encoding, bool) {
	switch strings.ToLower(name) {
	case "identity", "*":
		return tiledata.Identity, true
	case "gzip":
		return tiledata.Gzip, true
	case "br":
		return tiledata.Brotli, true
	case "zstd":
		return tiledata.Zstd, true
	default:
		return tiledata.Identity, false
	}
}
