package votable

import (
	"io"
)

// Load reads the first table of the document in r completely: its
// metadata and all of its rows. Convenience for small tables; use
// NewReader and RowReader for streaming access.
func Load(r io.Reader) (*Table, []Row, error) {
	p, err := NewReader(r)
	if err != nil {
		return nil, nil, err
	}
	table, rowReader, err := p.NextTable()
	if err == io.EOF {
		return nil, nil, io.EOF
	}
	if err != nil {
		return nil, nil, err
	}
	var rows []Row
	for {
		row, err := rowReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, err
		}
		rows = append(rows, row)
	}
	return table, rows, nil
}

// LoadFile is Load on a local file, transparently decompressing
// gzip and zstd inputs.
func LoadFile(path string) (*Table, []Row, error) {
	src, err := Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()
	return Load(src)
}

// Save writes rows as a complete single-table document in BINARY
// serialization, the compact default for machine consumption. A
// load-save cycle through this interface keeps the column metadata but
// drops document and resource level annotations.
func Save(w io.Writer, name string, schema *Schema, rows []Row) error {
	doc := NewWriter(w)
	if err := doc.BeginResource(); err != nil {
		return err
	}
	tw, err := doc.BeginTable(name, schema, Binary, len(rows))
	if err != nil {
		return err
	}
	for _, row := range rows {
		if err := tw.WriteRow(row); err != nil {
			return err
		}
	}
	if err := tw.Close(); err != nil {
		return err
	}
	return doc.Close()
}
