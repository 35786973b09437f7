// Package usbid looks up vendor and product names in the usb.ids database.
//
// The database is the plain-text list maintained by the Linux USB project
// and shipped by most distributions. Vendor lines start in the first column
// and product lines are indented by one tab:
//
//	1209  Generic
//		0001  pid.codes Test PID
//
// A database can be parsed from any reader, or loaded from the first
// readable file of a search path:
//
//	db := usbid.New()
//	if err := db.Load(usbid.DefaultPaths...); err != nil {
//		// names are empty; lookups still work
//	}
//	fmt.Println(db.Describe(0x1209, 0x0001))
//
// All methods are safe for concurrent use.
package usbid
