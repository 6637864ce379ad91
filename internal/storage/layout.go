package storage

import "path"

// BinaryExt is the extension of binary record files.
const BinaryExt = "bin"

// Layout maps collections and records to paths relative to the store root:
//
//	<collection>/index.<ext>
//	<collection>/<id>.<ext>   structured record
//	<collection>/<id>.bin     binary record
type Layout struct {
	Ext string // "json" or "yaml"
}

// CollectionDir returns the directory of a collection.
func (l Layout) CollectionDir(collection string) string {
	return collection
}

// IndexFile returns the name of the index file inside a collection dir.
func (l Layout) IndexFile() string {
	return "index." + l.Ext
}

// IndexPath returns the index file of a collection.
func (l Layout) IndexPath(collection string) string {
	return path.Join(collection, l.IndexFile())
}

// RecordPath returns the file holding record id in its given representation.
func (l Layout) RecordPath(collection, id string, isBinary bool) string {
	ext := l.Ext
	if isBinary {
		ext = BinaryExt
	}
	return path.Join(collection, id+"."+ext)
}
