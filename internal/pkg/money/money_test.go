package money

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Money
		wantErr bool
	}{
		{in: "35", want: 3500},
		{in: "35.5", want: 3550},
		{in: "35.05", want: 3505},
		{in: "0.99", want: 99},
		{in: ".50", want: 50},
		{in: "-2.00", want: -200},
		{in: "1.234", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
		{in: "10.", wantErr: true},
		{in: "--5.00", wantErr: true},
		{in: "1.-5", wantErr: true},
		{in: "1.+5", wantErr: true},
		{in: "+5", wantErr: true},
		{in: "-", wantErr: true},
		{in: ".", wantErr: true},
		{in: "1.2a", wantErr: true},
		{in: "1 000", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestString(t *testing.T) {
	assert.Equal(t, "35.00", FromCents(3500).String())
	assert.Equal(t, "0.07", FromCents(7).String())
	assert.Equal(t, "-1.50", FromCents(-150).String())
}

func TestJSON(t *testing.T) {
	data, err := json.Marshal(struct {
		Total Money `json:"total"`
	}{Total: 3500})
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":"35.00"}`, string(data))

	var decoded struct {
		Total Money `json:"total"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"total":"12.30"}`), &decoded))
	assert.Equal(t, Money(1230), decoded.Total)

	require.NoError(t, json.Unmarshal([]byte(`{"total":7.5}`), &decoded))
	assert.Equal(t, Money(750), decoded.Total)
}
