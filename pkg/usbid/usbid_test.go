package usbid

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# USB ID Database
# Comment line

1234  Test Vendor One
	5678  Test Product One
	9abc  Test Product Two
		00  Interface Zero
abcd  Test Vendor Two
	def0  Test Product Three

# List of known device classes, subclasses and protocols
C 03  Human Interface Device
	01  Boot Interface Subclass
`

func parsed(t *testing.T, content string) *Database {
	t.Helper()
	db := New()
	require.NoError(t, db.Parse(strings.NewReader(content)))
	return db
}

func TestParse(t *testing.T) {
	db := parsed(t, sample)

	tests := []struct {
		name        string
		vid, pid    uint16
		wantVendor  string
		wantProduct string
	}{
		{"first product", 0x1234, 0x5678, "Test Vendor One", "Test Product One"},
		{"second product", 0x1234, 0x9abc, "Test Vendor One", "Test Product Two"},
		{"second vendor", 0xabcd, 0xdef0, "Test Vendor Two", "Test Product Three"},
		{"unknown vendor", 0xffff, 0x0000, "", ""},
		{"unknown product", 0x1234, 0xffff, "Test Vendor One", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantVendor, db.LookupVendor(tt.vid))
			assert.Equal(t, tt.wantProduct, db.LookupProduct(tt.vid, tt.pid))
		})
	}

	assert.Equal(t, 2, db.VendorCount())
	assert.Equal(t, 3, db.ProductCount(), "class section ignored")
}

func TestParseMalformed(t *testing.T) {
	db := parsed(t, `1234  Valid Vendor
	5678  Valid Product
ZZZZ  Invalid VID (non-hex)
	YYYY  Invalid PID (non-hex)
	0001  Orphan Product
12    Too short
1234Valid Vendor No Space
	5678Valid Product No Space
9abc  Another Valid Vendor
	def0  Another Valid Product
`)
	assert.Equal(t, 2, db.VendorCount())
	assert.Equal(t, 2, db.ProductCount())
	assert.Equal(t, "Valid Product", db.LookupProduct(0x1234, 0x5678))
	assert.Equal(t, "Another Valid Product", db.LookupProduct(0x9abc, 0xdef0))
	assert.Empty(t, db.LookupProduct(0x1234, 0x0001), "orphan product after a bad vendor")
}

func TestDescribe(t *testing.T) {
	db := parsed(t, sample)
	assert.Equal(t, "Test Vendor One Test Product One", db.Describe(0x1234, 0x5678))
	assert.Equal(t, "Test Vendor One 0001", db.Describe(0x1234, 0x0001))
	assert.Equal(t, "1209 0001", db.Describe(0x1209, 0x0001))
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "usb.ids")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	db := New()
	require.NoError(t, db.Load(filepath.Join(dir, "missing.ids"), path))
	assert.Equal(t, path, db.Source())
	assert.Equal(t, "Test Vendor Two", db.LookupVendor(0xabcd))
}

func TestLoadNotFound(t *testing.T) {
	db := New()
	err := db.Load("/nonexistent/path/usb.ids")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Empty(t, db.Source())
	assert.Zero(t, db.VendorCount())
}
