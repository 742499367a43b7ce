package promo

import (
	"compress/gzip"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"tile-depot/internal/model"

	"github.com/shopspring/decimal"
)

// Columns is the catalogue header, in order.
var Columns = []string{"code", "discount_type", "discount_value", "starts_at", "ends_at", "usage_limit", "is_active"}

// ErrBadCatalogue wraps every content error in a catalogue file.
var ErrBadCatalogue = errors.New("bad promo catalogue")

// ParseGzip decompresses r and parses the CSV inside.
func ParseGzip(ctx context.Context, r io.Reader) ([]model.PromoCode, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	return Parse(ctx, gz)
}

// Parse reads catalogue rows. The first record must be the header. Codes are
// upper-cased and a later row for the same code replaces the earlier one.
func Parse(ctx context.Context, r io.Reader) ([]model.PromoCode, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = len(Columns)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadCatalogue, err)
	}
	for i, col := range Columns {
		if strings.ToLower(strings.TrimSpace(header[i])) != col {
			return nil, fmt.Errorf("%w: column %d is %q, want %q", ErrBadCatalogue, i+1, header[i], col)
		}
	}

	var promos []model.PromoCode
	index := make(map[string]int)

	for line := 2; ; line++ {
		if line%10_000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadCatalogue, err)
		}

		p, err := parseRecord(record)
		if err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrBadCatalogue, line, err)
		}

		if i, ok := index[p.Code]; ok {
			promos[i] = p
			continue
		}
		index[p.Code] = len(promos)
		promos = append(promos, p)
	}

	return promos, nil
}

func parseRecord(rec []string) (model.PromoCode, error) {
	var p model.PromoCode

	p.Code = strings.ToUpper(strings.TrimSpace(rec[0]))
	if p.Code == "" {
		return p, errors.New("empty code")
	}

	p.DiscountType = model.DiscountType(strings.ToLower(strings.TrimSpace(rec[1])))
	if p.DiscountType != model.DiscountPercentage && p.DiscountType != model.DiscountFixed {
		return p, fmt.Errorf("unknown discount type %q", rec[1])
	}

	value, err := decimal.NewFromString(strings.TrimSpace(rec[2]))
	if err != nil {
		return p, fmt.Errorf("discount value: %w", err)
	}
	if value.IsNegative() {
		return p, errors.New("discount value must not be negative")
	}
	if p.DiscountType == model.DiscountPercentage && value.GreaterThan(decimal.NewFromInt(100)) {
		return p, errors.New("percentage discount above 100")
	}
	p.DiscountValue = value

	if p.StartsAt, err = time.Parse(time.RFC3339, strings.TrimSpace(rec[3])); err != nil {
		return p, fmt.Errorf("starts_at: %w", err)
	}
	if p.EndsAt, err = time.Parse(time.RFC3339, strings.TrimSpace(rec[4])); err != nil {
		return p, fmt.Errorf("ends_at: %w", err)
	}
	if p.EndsAt.Before(p.StartsAt) {
		return p, errors.New("ends_at before starts_at")
	}

	if raw := strings.TrimSpace(rec[5]); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return p, fmt.Errorf("usage_limit %q", raw)
		}
		p.UsageLimit = &limit
	}

	p.IsActive = true
	if raw := strings.TrimSpace(rec[6]); raw != "" {
		if p.IsActive, err = strconv.ParseBool(raw); err != nil {
			return p, fmt.Errorf("is_active: %w", err)
		}
	}

	return p, nil
}

// Write emits promos as a catalogue CSV, header included.
func Write(w io.Writer, promos []model.PromoCode) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}
	for _, p := range promos {
		limit := ""
		if p.UsageLimit != nil {
			limit = strconv.Itoa(*p.UsageLimit)
		}
		rec := []string{
			p.Code,
			string(p.DiscountType),
			p.DiscountValue.String(),
			p.StartsAt.UTC().Format(time.RFC3339),
			p.EndsAt.UTC().Format(time.RFC3339),
			limit,
			strconv.FormatBool(p.IsActive),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
