package preset

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestDefaultLookup tests the built-in variants
func TestDefaultLookup(t *testing.T) {
	catalog := Default()

	tests := []struct {
		name    string
		variant string
		want    Preset
	}{
		{"V1 pins CAN and AES_128", "V1", Preset{"CAN": true, "AES_128": true}},
		{"V2 pins CAN_FD and AES_256", "V2", Preset{"CAN_FD": true, "AES_256": true}},
		{"V3 pins SecOC_Protection", "V3", Preset{"SecOC_Protection": true}},
		{"unknown variant is unconstrained", "V99", Preset{}},
		{"empty id is unconstrained", "", Preset{}},
		{"lookup is case sensitive", "v1", Preset{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, catalog.Lookup(tt.variant))
		})
	}
}

func TestHas(t *testing.T) {
	catalog := Default()
	assert.True(t, catalog.Has("V1"))
	assert.False(t, catalog.Has("V99"))
	assert.False(t, catalog.Has("v1"))

	catalog.Register("V7", Preset{})
	assert.True(t, catalog.Has("V7"), "an empty preset is still registered")
}

func TestLookupReturnsCopy(t *testing.T) {
	catalog := Default()
	p := catalog.Lookup("V1")
	p["MAC_32"] = true
	delete(p, "CAN")

	assert.Equal(t, Preset{"CAN": true, "AES_128": true}, catalog.Lookup("V1"))
}

func TestRegisterCopiesInput(t *testing.T) {
	r := NewRegistry(nil)
	in := Preset{"A": true}
	r.Register("X", in)
	in["A"] = false

	assert.Equal(t, Preset{"A": true}, r.Lookup("X"))
	assert.Equal(t, []string{"X"}, r.Variants())
}

func TestLoad(t *testing.T) {
	data, err := os.ReadFile("testdata/presets.yaml")
	require.NoError(t, err)

	r, err := Load(data)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1", "V2", "V3", "V4"}, r.Variants())
	assert.Equal(t, Preset{"SecOC_Protection": true, "MAC_128": true, "CAN": false}, r.Lookup("V4"))
	assert.Equal(t, []string{"CAN", "MAC_128", "SecOC_Protection"}, r.Lookup("V4").Features())
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not yaml", "variants: [unterminated"},
		{"non-boolean value", "variants:\n  V1:\n    CAN: maybe\n"},
		{"missing variants key", "presets: {}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}
}

func TestConcurrentLookup(t *testing.T) {
	r := Default()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				r.Register("V5", Preset{"CAN": true})
				return
			}
			_ = r.Lookup("V3")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, Preset{"CAN": true}, r.Lookup("V5"))
}
