package classify

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name           string
		serverUp       bool
		gatewayUp      bool
		gatewayChecked bool
		want           Status
		wantCode       int
	}{
		{"both up", true, true, true, StatusGreen, 0},
		{"server down gateway up", false, true, true, StatusYellow, 1},
		{"both down", false, false, true, StatusRed, 2},
		// Gateway-only anomaly is deliberately folded into yellow.
		{"server up gateway down", true, false, true, StatusYellow, 1},
		{"no gateway check server up", true, false, false, StatusGreen, 0},
		{"no gateway check server down", false, false, false, StatusRed, 2},
		{"no gateway check ignores gateway", false, true, false, StatusRed, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.serverUp, tt.gatewayUp, tt.gatewayChecked)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantCode, got.Code())
		})
	}
}

func TestStatusCode_Total(t *testing.T) {
	assert.Equal(t, 0, StatusGreen.Code())
	assert.Equal(t, 1, StatusYellow.Code())
	assert.Equal(t, 2, StatusRed.Code())
}
