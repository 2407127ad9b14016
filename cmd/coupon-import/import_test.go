package main

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
)

type fakeWriter struct {
	batches [][]coupon.Coupon
	err     error
}

func (f *fakeWriter) UpsertBatch(_ context.Context, coupons []coupon.Coupon) error {
	if f.err != nil {
		return f.err
	}
	f.batches = append(f.batches, append([]coupon.Coupon(nil), coupons...))
	return nil
}

func (f *fakeWriter) codes() []string {
	var out []string
	for _, b := range f.batches {
		for _, c := range b {
			out = append(out, c.Code)
		}
	}
	return out
}

func source(lines ...string) func() (io.ReadCloser, error) {
	return func() (io.ReadCloser, error) {
		return io.NopCloser(strings.NewReader(strings.Join(lines, "\n"))), nil
	}
}

func TestParseCoupon(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		wantErr bool
		check   func(t *testing.T, c coupon.Coupon)
	}{
		{
			name: "percent",
			line: `{"code":" save10 ","type":"discount","discountType":"percent","discountValue":10,"minPurchase":"499.50","expiryDate":"2030-01-01T00:00:00Z"}`,
			check: func(t *testing.T, c coupon.Coupon) {
				assert.Equal(t, "SAVE10", c.Code)
				assert.True(t, c.IsActive)
				assert.Equal(t, "10", c.DiscountValue.String())
				assert.Equal(t, "499.5", c.MinPurchase.String())
				assert.Equal(t, 2030, c.ExpiryDate.Year())
				assert.NotEmpty(t, c.ID)
			},
		},
		{
			name: "freebie inactive",
			line: `{"id":"c1","code":"FREESOCKS","type":"freebie","freebieProductId":"p9","isActive":false,"expiryDate":null,"extra":[1,2]}`,
			check: func(t *testing.T, c coupon.Coupon) {
				assert.Equal(t, "c1", c.ID)
				assert.False(t, c.IsActive)
				assert.Equal(t, "p9", c.FreebieProductID)
				assert.True(t, c.ExpiryDate.IsZero())
			},
		},
		{name: "no code", line: `{"type":"discount","discountType":"flat","discountValue":5}`, wantErr: true},
		{name: "unknown type", line: `{"code":"X","type":"cashback"}`, wantErr: true},
		{name: "percent over 100", line: `{"code":"X","type":"discount","discountType":"percent","discountValue":150}`, wantErr: true},
		{name: "zero flat", line: `{"code":"X","type":"discount","discountType":"flat","discountValue":0}`, wantErr: true},
		{name: "freebie without product", line: `{"code":"X","type":"freebie"}`, wantErr: true},
		{name: "bad expiry", line: `{"code":"X","type":"freebie","freebieProductId":"p","expiryDate":"tomorrow"}`, wantErr: true},
		{name: "not json", line: `code=X`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := parseCoupon([]byte(tt.line))
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, c)
		})
	}
}

func TestImporter_DedupesInFileOrder(t *testing.T) {
	w := &fakeWriter{}
	im := newImporter(w, importConfig{BatchSize: 2, Capacity: 1000, FPR: 1e-9}, zap.NewNop())

	first := source(
		`{"code":"A","type":"freebie","freebieProductId":"p1"}`,
		`{"code":"b","type":"freebie","freebieProductId":"p1"}`,
		``,
		`{"code":"a","type":"freebie","freebieProductId":"p2"}`,
	)
	second := source(
		`{"code":"C","type":"discount","discountType":"flat","discountValue":50}`,
		`{"code":"B","type":"freebie","freebieProductId":"p3"}`,
		`garbage`,
	)

	stats, err := im.Run(context.Background(), []func() (io.ReadCloser, error){first, second}, []string{"one", "two"})
	require.NoError(t, err)

	assert.Equal(t, importStats{Read: 6, Invalid: 1, Duplicates: 2, Written: 3}, stats)
	assert.Equal(t, []string{"A", "B", "C"}, w.codes())
	assert.Len(t, w.batches, 2)
	assert.Equal(t, "p1", w.batches[0][0].FreebieProductID)
}

func TestImporter_WriteError(t *testing.T) {
	w := &fakeWriter{err: errors.New("db down")}
	im := newImporter(w, importConfig{BatchSize: 1}, zap.NewNop())

	_, err := im.Run(context.Background(),
		[]func() (io.ReadCloser, error){source(`{"code":"A","type":"freebie","freebieProductId":"p1"}`)},
		[]string{"one"},
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestImporter_OpenError(t *testing.T) {
	im := newImporter(&fakeWriter{}, importConfig{}, zap.NewNop())
	open := func() (io.ReadCloser, error) { return nil, errors.New("missing") }

	_, err := im.Run(context.Background(), []func() (io.ReadCloser, error){open}, []string{"gone.gz"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gone.gz")
}

func TestImporter_LongLine(t *testing.T) {
	im := newImporter(&fakeWriter{}, importConfig{}, zap.NewNop())
	long := `{"code":"` + string(bytes.Repeat([]byte("x"), maxLineBytes)) + `"}`

	_, err := im.Run(context.Background(), []func() (io.ReadCloser, error){source(long)}, []string{"big"})
	require.Error(t, err)
}
