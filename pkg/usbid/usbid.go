package usbid

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
)

// DefaultPaths lists the standard locations of the usb.ids database.
var DefaultPaths = []string{
	"/usr/share/hwdata/usb.ids",
	"/var/lib/usbutils/usb.ids",
	"/usr/share/misc/usb.ids",
}

// ErrNotFound is returned by Load when no path could be opened.
var ErrNotFound = errors.New("usb.ids database not found")

// Database caches vendor and product names.
type Database struct {
	vendors  map[uint16]string // VID -> vendor name
	products map[uint32]string // (VID<<16)|PID -> product name
	source   string
	mu       sync.RWMutex
}

// New returns an empty database.
func New() *Database {
	return &Database{
		vendors:  make(map[uint16]string),
		products: make(map[uint32]string),
	}
}

// Load parses the first of paths that can be opened. With no paths the
// DefaultPaths are searched.
func (db *Database) Load(paths ...string) error {
	if len(paths) == 0 {
		paths = DefaultPaths
	}
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		err = db.Parse(f)
		f.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		db.mu.Lock()
		db.source = path
		db.mu.Unlock()
		return nil
	}
	return ErrNotFound
}

// Parse adds the entries read from r. Entries already present are
// replaced. Interface, class and other sections after the vendor list are
// ignored.
func (db *Database) Parse(r io.Reader) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	scanner := bufio.NewScanner(r)
	var vid uint16
	var inVendor bool

	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		if line[0] == '\t' {
			// Product lines only follow a vendor; "\t\t" interface lines
			// fail to parse as an ID and are skipped.
			if !inVendor {
				continue
			}
			if id, name, ok := entry(line[1:]); ok {
				db.products[uint32(vid)<<16|uint32(id)] = name
			}
			continue
		}

		id, name, ok := entry(line)
		if !ok {
			// Class ("C 03  HID"), language and other sections.
			inVendor = false
			continue
		}
		vid, inVendor = id, true
		db.vendors[vid] = name
	}
	return scanner.Err()
}

// entry splits "xxxx  Name" into its hex ID and name.
func entry(line string) (uint16, string, bool) {
	if len(line) < 6 || line[4] != ' ' {
		return 0, "", false
	}
	id, err := strconv.ParseUint(line[:4], 16, 16)
	if err != nil {
		return 0, "", false
	}
	name := strings.TrimSpace(line[5:])
	if name == "" {
		return 0, "", false
	}
	return uint16(id), name, true
}

// LookupVendor returns the vendor name of vid, or "".
func (db *Database) LookupVendor(vid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.vendors[vid]
}

// LookupProduct returns the product name of vid:pid, or "".
func (db *Database) LookupProduct(vid, pid uint16) string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.products[uint32(vid)<<16|uint32(pid)]
}

// Describe returns "Vendor Product" for vid:pid, falling back to the hex
// IDs for names the database lacks.
func (db *Database) Describe(vid, pid uint16) string {
	vendor := db.LookupVendor(vid)
	if vendor == "" {
		vendor = fmt.Sprintf("%04x", vid)
	}
	product := db.LookupProduct(vid, pid)
	if product == "" {
		product = fmt.Sprintf("%04x", pid)
	}
	return vendor + " " + product
}

// Source returns the path the database was loaded from, or "" when it was
// only parsed from readers.
func (db *Database) Source() string {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return db.source
}

// VendorCount returns the number of vendors.
func (db *Database) VendorCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.vendors)
}

// ProductCount returns the number of products.
func (db *Database) ProductCount() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.products)
}
