package export

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func voucherDataset(n int) Dataset {
	data := Dataset{Headers: []string{"Voucher", "PIN", "Expires"}}
	for i := 0; i < n; i++ {
		data.Rows = append(data.Rows, map[string]string{"Voucher": "ABCD23456X", "PIN": "123456", "Expires": "2026-08-31"})
	}
	return data
}

func TestCSVExporterRender(t *testing.T) {
	out, err := NewCSVExporter().Render(Dataset{
		Headers: []string{"Voucher", "PIN"},
		Rows:    []map[string]string{{"Voucher": "ABCD", "PIN": "0042"}, {"Voucher": "EFGH"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Voucher,PIN\nABCD,0042\nEFGH,\n", string(out))

	_, err = NewCSVExporter().Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRenderCards(t *testing.T) {
	out, err := NewPDFExporter().RenderCards(voucherDataset(13), "Admission e-voucher")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	empty, err := NewPDFExporter().RenderCards(voucherDataset(0), "")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(empty, []byte("%PDF-")))

	_, err = NewPDFExporter().RenderCards(Dataset{}, "")
	assert.Error(t, err)
}
