package tiledata

import "google.golang.org/protobuf/encoding/protowire"

// looksLikeMVT performs a cheap structural check for the Mapbox Vector Tile
// wire format: the payload must parse as top-level protobuf fields, and at
// least one of them must be a `layers` field (field 3, length-delimited)
// that contains a `name` field (field 1, length-delimited) and a `version`
// field (field 15, varint). This avoids a full geometry decode just to
// classify a payload.
func looksLikeMVT(data []byte) bool {
	sawLayer := false
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false
		}
		b = b[n:]

		if num == 3 && typ == protowire.BytesType {
			layer, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return false
			}
			b = b[n:]
			if isLayerMessage(layer) {
				sawLayer = true
			}
			continue
		}

		n, ok := skipField(b, typ)
		if !ok {
			return false
		}
		b = b[n:]
	}
	return sawLayer
}

func isLayerMessage(data []byte) bool {
	sawName, sawVersion := false, false
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return false
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			_, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return false
			}
			b = b[n:]
			sawName = true
		case num == 15 && typ == protowire.VarintType:
			_, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return false
			}
			b = b[n:]
			sawVersion = true
		default:
			n, ok := skipField(b, typ)
			if !ok {
				return false
			}
			b = b[n:]
		}
	}
	return sawName && sawVersion
}

func skipField(b []byte, typ protowire.Type) (int, bool) {
	switch typ {
	case protowire.VarintType:
		_, n := protowire.ConsumeVarint(b)
		return n, n >= 0
	case protowire.Fixed32Type:
		_, n := protowire.ConsumeFixed32(b)
		return n, n >= 0
	case protowire.Fixed64Type:
		_, n := protowire.ConsumeFixed64(b)
		return n, n >= 0
	case protowire.BytesType:
		_, n := protowire.ConsumeBytes(b)
		return n, n >= 0
	case protowire.StartGroupType:
		n := protowire.ConsumeFieldValue(0, typ, b)
		return n, n >= 0
	default:
		return 0, false
	}
}
