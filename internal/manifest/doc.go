// Package manifest defines the burrow and warren documents published by a
// content owner and the rules a client uses to accept them.
//
// A burrow is a content index: a list of entries (files, directories,
// nested burrows, direct manifest references and external links). A warren
// is a registry that points at burrows and, for federation, at other
// warrens.
//
// # Compatibility
//
// Decoding is lenient about what it does not understand and strict about
// what it does:
//   - Unknown fields are kept in Extra and written back on encode
//   - Unknown entry kinds decode to KindUnknown with the raw string kept
//   - The format version must carry a supported major version
//   - Entry ids must be unique within one burrow
//
// # Usage
//
//	doc, err := manifest.Parse(data, "https://example.org/docs/burrow.json")
//	if err != nil {
//	    // errors.Is(err, manifest.ErrInvalid) is always true here
//	}
//	if doc.Burrow != nil {
//	    for _, e := range doc.Burrow.Entries {
//	        loc, _ := doc.Burrow.Resolve(e.Location)
//	        fmt.Println(e.ID, e.Kind, loc)
//	    }
//	}
package manifest
