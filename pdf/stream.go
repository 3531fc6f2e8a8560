package pdf

import (
	"bytes"
	"compress/zlib"
	"encoding/ascii85"
	"fmt"
	"io"
)

type filterSpec struct {
	name  Name
	parms Dictionary
}

// Decode runs the stream data through the filter chain named by the
// stream dictionary. A missing Filter entry means the data is stored
// raw.
func (s Stream) Decode() ([]byte, error) {
	chain, err := s.filterChain()
	if err != nil {
		return nil, err
	}

	data := s.Stream
	for _, f := range chain {
		switch f.name {
		case "FlateDecode":
			data, err = flateDecode(data)
		case "ASCII85Decode":
			data, err = ascii85Decode(data)
		default:
			err = fmt.Errorf("no decoder for %s", f.name)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f.name, err)
		}
		if data, err = applyPredictor(data, f.parms); err != nil {
			return nil, fmt.Errorf("%s predictor: %w", f.name, err)
		}
	}
	return data, nil
}

// filterChain flattens the Filter entry to a list of names and pairs
// each with its DecodeParms dictionary.
func (s Stream) filterChain() ([]filterSpec, error) {
	raw, ok := s.Dictionary["Filter"]
	if !ok {
		return nil, nil
	}

	var names []Name
	switch f := raw.(type) {
	case Name:
		names = []Name{f}
	case Array:
		for _, el := range f {
			name, ok := el.(Name)
			if !ok {
				return nil, fmt.Errorf("filter array holds a %T, want a name", el)
			}
			names = append(names, name)
		}
	default:
		return nil, fmt.Errorf("unhandled Filter type %T", raw)
	}

	var parms []Dictionary
	switch p := s.Dictionary["DecodeParms"].(type) {
	case nil:
	case Dictionary:
		parms = []Dictionary{p}
	case Array:
		for _, el := range p {
			d, _ := el.(Dictionary)
			parms = append(parms, d)
		}
	default:
		return nil, fmt.Errorf("unhandled DecodeParms type %T", p)
	}

	chain := make([]filterSpec, len(names))
	for i, name := range names {
		chain[i].name = name
		if i < len(parms) {
			chain[i].parms = parms[i]
		}
	}
	return chain, nil
}

func flateDecode(encoded []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func ascii85Decode(encoded []byte) ([]byte, error) {
	// strip the ~> end of data marker
	if end := bytes.Index(encoded, []byte("~>")); end >= 0 {
		encoded = encoded[:end]
	}
	return io.ReadAll(ascii85.NewDecoder(bytes.NewReader(encoded)))
}

// FlateEncode compresses data for use in a stream with a FlateDecode
// filter entry.
func FlateEncode(data []byte) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := zlib.NewWriter(buf)
	if _, err := w.Write(data); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// applyPredictor reverses the PNG row predictors (Predictor 10 and
// up) that cross-reference streams commonly carry in DecodeParms.
func applyPredictor(data []byte, parms Dictionary) ([]byte, error) {
	predictor, ok := parms["Predictor"].(Integer)
	if !ok || predictor < 10 {
		return data, nil
	}

	columns := 1
	if c, ok := parms["Columns"].(Integer); ok {
		columns = int(c)
	}
	colors := 1
	if c, ok := parms["Colors"].(Integer); ok {
		colors = int(c)
	}
	bpc := 8
	if b, ok := parms["BitsPerComponent"].(Integer); ok {
		bpc = int(b)
	}

	bpp := (colors*bpc + 7) / 8
	rowLen := (columns*colors*bpc + 7) / 8
	stride := rowLen + 1
	if rowLen <= 0 || len(data)%stride != 0 {
		return nil, fmt.Errorf("data length %d does not fit rows of %d bytes", len(data), stride)
	}

	out := make([]byte, 0, len(data)/stride*rowLen)
	prev := make([]byte, rowLen)
	row := make([]byte, rowLen)
	for at := 0; at < len(data); at += stride {
		tag := data[at]
		copy(row, data[at+1:at+stride])
		for i := range row {
			var left, upLeft byte
			if i >= bpp {
				left = row[i-bpp]
				upLeft = prev[i-bpp]
			}
			up := prev[i]
			switch tag {
			case 0:
			case 1:
				row[i] += left
			case 2:
				row[i] += up
			case 3:
				row[i] += byte((int(left) + int(up)) / 2)
			case 4:
				row[i] += paeth(left, up, upLeft)
			default:
				return nil, fmt.Errorf("unknown row filter %d", tag)
			}
		}
		out = append(out, row...)
		copy(prev, row)
	}
	return out, nil
}

func paeth(a, b, c byte) byte {
	p := int(a) + int(b) - int(c)
	pa, pb, pc := abs(p-int(a)), abs(p-int(b)), abs(p-int(c))
	switch {
	case pa <= pb && pa <= pc:
		return a
	case pb <= pc:
		return b
	}
	return c
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
