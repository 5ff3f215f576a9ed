package store

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/topproducts"
)

func encodeImages(images []string) ([]byte, error) {
	if images == nil {
		images = []string{}
	}
	raw, err := json.Marshal(images)
	if err != nil {
		return nil, fmt.Errorf("store: encode images: %w", err)
	}
	return raw, nil
}

func decodeImages(raw []byte, p *catalog.Product) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, &p.Images); err != nil {
		return fmt.Errorf("store: decode images of %s: %w", p.ID, err)
	}
	return nil
}

// timestamps fills zero creation/update times with the current time.
func timestamps(created, updated time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	if created.IsZero() {
		created = now
	}
	if updated.IsZero() {
		updated = created
	}
	return created.UTC(), updated.UTC()
}

func merchantProfile(business *string) *topproducts.MerchantProfile {
	if business == nil || *business == "" {
		return nil
	}
	return &topproducts.MerchantProfile{BusinessName: *business}
}

func businessName(u topproducts.User) *string {
	if u.MerchantProfile == nil || u.MerchantProfile.BusinessName == "" {
		return nil
	}
	name := u.MerchantProfile.BusinessName
	return &name
}

// orderItems returns the raw items payload, or nil for an absent one.
func orderItems(raw json.RawMessage) []byte {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil
	}
	return trimmed
}

// sqlTime scans timestamps stored either natively or as RFC 3339 text.
type sqlTime struct {
	Time time.Time
}

func (t *sqlTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("store: cannot scan %T into time", src)
	}
}

func (t *sqlTime) parse(v string) error {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05.999999999-07:00", "2006-01-02 15:04:05.999999999"} {
		parsed, err := time.Parse(layout, v)
		if err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("store: unrecognised time %q", v)
}

// textTime stores a timestamp as RFC 3339 text.
type textTime time.Time

func (t textTime) Value() (driver.Value, error) {
	return time.Time(t).UTC().Format(time.RFC3339Nano), nil
}
