package pipeline

import (
	"errors"
	"testing"

	"github.com/tarkov-database/martin-tileserver/core/tiledata"
)

func TestNegotiateEncodingDefaultsToGzipForVector(t *testing.T) {
	got, err := negotiateEncoding("", tiledata.MVT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tiledata.Gzip {
		t.Fatalf("expected gzip default, got %v", got)
	}
}

func TestNegotiateEncodingRasterNeverRecompressed(t *testing.T) {
	got, err := negotiateEncoding("gzip, br", tiledata.PNG)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tiledata.Identity {
		t.Fatalf("expected identity for raster, got %v", got)
	}
}

func TestNegotiateEncodingPicksHighestQ(t *testing.T) {
	got, err := negotiateEncoding("gzip;q=0.5, br;q=0.9, identity;q=0.1", tiledata.MVT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tiledata.Brotli {
		t.Fatalf("expected brotli (highest q), got %v", got)
	}
}

func TestNegotiateEncodingFallsBackToIdentityWhenOnlyGzipRejected(t *testing.T) {
	got, err := negotiateEncoding("gzip;q=0", tiledata.MVT)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != tiledata.Identity {
		t.Fatalf("expected identity when gzip explicitly rejected and nothing else offered, got %v", got)
	}
}

func TestNegotiateEncodingIdentityRejectedWithNoOtherMatchYields406(t *testing.T) {
	_, err := negotiateEncoding("identity;q=0", tiledata.MVT)
	if !errors.Is(err, tiledata.ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}

func TestNegotiateEncodingAllRejectedYields406(t *testing.T) {
	_, err := negotiateEncoding("gzip;q=0, identity;q=0", tiledata.MVT)
	if !errors.Is(err, tiledata.ErrUnsupportedEncoding) {
		t.Fatalf("expected ErrUnsupportedEncoding, got %v", err)
	}
}
