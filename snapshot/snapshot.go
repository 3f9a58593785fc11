// Package snapshot exports compiled dispatch tables as a portable
// document, encoded as canonical CBOR.
//
// A document lists every class, every generic function and every concrete
// argument combination with its outcome and chain. It holds no
// implementations, so it can be stored, diffed and compared across
// processes. Two compiles of the same registrations with the same options
// produce the same fingerprint.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"

	"github.com/fxamacker/cbor/v2"

	"github.com/chazu/multimethod/dispatch"
)

// Version is the document format version.
const Version = 1

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("snapshot: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Document is an exported snapshot.
type Document struct {
	Version    int        `cbor:"version"`
	Generation string     `cbor:"generation,omitempty"`
	Classes    []Class    `cbor:"classes"`
	Functions  []Function `cbor:"functions"`
}

// Class is one hierarchy node, in slot order.
type Class struct {
	ID       uint64   `cbor:"id"`
	Name     string   `cbor:"name"`
	Bases    []uint64 `cbor:"bases,omitempty"`
	Abstract bool     `cbor:"abstract,omitempty"`
}

// Function is one compiled table.
type Function struct {
	Name      string   `cbor:"name"`
	Arity     int      `cbor:"arity"`
	Virtual   []int    `cbor:"virtual"`
	Overrides []string `cbor:"overrides"`
	Axes      []Axis   `cbor:"axes"`
	Cells     []Cell   `cbor:"cells"`
}

// Axis records the shape of one axis hash.
type Axis struct {
	Position   int      `cbor:"position"`
	Domain     []uint64 `cbor:"domain"`
	Groups     int      `cbor:"groups"`
	Bits       uint     `cbor:"bits"`
	Multiplier uint64   `cbor:"multiplier"`
}

// Cell is one concrete combination.
type Cell struct {
	Types   []uint64 `cbor:"types"`
	Outcome string   `cbor:"outcome"`
	Chain   []string `cbor:"chain,omitempty"`
}

// Export converts a snapshot. Functions keep declaration order; cells
// follow the table's combination order.
func Export(s *dispatch.Snapshot) *Document {
	g := s.Graph()
	doc := &Document{Version: Version, Generation: s.Generation.String()}

	for slot := 0; slot < g.Len(); slot++ {
		n := g.Node(slot)
		c := Class{ID: uint64(n.ID), Name: n.Name, Abstract: n.Abstract}
		for _, b := range n.Bases {
			c.Bases = append(c.Bases, uint64(b))
		}
		doc.Classes = append(doc.Classes, c)
	}

	for _, t := range s.Tables() {
		fn := t.Function()
		f := Function{
			Name:    fn.Name,
			Arity:   fn.Arity,
			Virtual: slices.Clone(fn.Virtual),
		}
		for _, o := range t.Overrides() {
			f.Overrides = append(f.Overrides, o.String())
		}
		for i := 0; i < t.Axes(); i++ {
			ax := t.Axis(i)
			a := Axis{
				Position:   ax.Position,
				Groups:     ax.Groups(),
				Bits:       ax.Hash().Bits(),
				Multiplier: ax.Hash().Multiplier(),
			}
			for _, id := range ax.Domain() {
				a.Domain = append(a.Domain, uint64(id))
			}
			f.Axes = append(f.Axes, a)
		}
		for types, cell := range t.Combinations() {
			c := Cell{Outcome: cell.Outcome.String()}
			for _, id := range types {
				c.Types = append(c.Types, uint64(id))
			}
			for _, o := range cell.Chain {
				c.Chain = append(c.Chain, o.String())
			}
			f.Cells = append(f.Cells, c)
		}
		doc.Functions = append(doc.Functions, f)
	}
	return doc
}

// Marshal encodes a document as canonical CBOR.
func Marshal(d *Document) ([]byte, error) {
	return encMode.Marshal(d)
}

// Unmarshal decodes a document.
func Unmarshal(data []byte) (*Document, error) {
	var d Document
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("snapshot: unmarshal document: %w", err)
	}
	if d.Version != Version {
		return nil, fmt.Errorf("snapshot: unsupported document version %d", d.Version)
	}
	return &d, nil
}

// Fingerprint returns the hex SHA-256 of the canonical encoding of d
// without its generation.
func Fingerprint(d *Document) (string, error) {
	anon := *d
	anon.Generation = ""
	data, err := Marshal(&anon)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// FingerprintSnapshot is Fingerprint(Export(s)).
func FingerprintSnapshot(s *dispatch.Snapshot) (string, error) {
	return Fingerprint(Export(s))
}
