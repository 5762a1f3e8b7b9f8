package engine

import (
	"encoding/binary"
	"io"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gosling-ml/gosling/device"
	"github.com/gosling-ml/gosling/exec"
	"github.com/gosling-ml/gosling/graph"
	"github.com/gosling-ml/gosling/types/xsync"
)

// Exported artifact framing: two sections, each a little-endian 8-byte
// unsigned length followed by that many payload bytes. The structural
// description of the graph comes first, the constants/weights blob second.
// There is no magic number and no version field; readers and writers agree on
// the framing alone.

// maxSectionBytes bounds how much Import will allocate for one section. A
// corrupt length field fails cleanly instead of attempting a huge allocation.
const maxSectionBytes = 1 << 34

// Export serializes the compiled model to w. The written artifact can be
// handed to Import to reconstruct an equivalent model without re-running the
// transformations.
func (m *Model) Export(w io.Writer) error {
	structural, constants, err := m.graph.Serialize()
	if err != nil {
		return errors.WithMessagef(err, "exporting model %q", m.graph.Name())
	}
	for _, section := range [][]byte{structural, constants} {
		var lenBytes [8]byte
		binary.LittleEndian.PutUint64(lenBytes[:], uint64(len(section)))
		if _, err := w.Write(lenBytes[:]); err != nil {
			return errors.Wrapf(ErrIO, "exporting model %q: %v", m.graph.Name(), err)
		}
		if _, err := w.Write(section); err != nil {
			return errors.Wrapf(ErrIO, "exporting model %q: %v", m.graph.Name(), err)
		}
	}
	return nil
}

// Import reconstructs a compiled model from an artifact written by Export.
//
// The imported graph is assumed to be already transformed, so no
// transformation pipeline runs; the model reports LoadedFromCache() == true.
// Framing violations, truncated streams and corrupt section lengths all fail
// with ErrDeserialization.
func Import(r io.Reader, config Config, execs Executors) (*Model, error) {
	structural, err := readSection(r)
	if err != nil {
		return nil, errors.WithMessage(err, "structural section")
	}
	constants, err := readSection(r)
	if err != nil {
		return nil, errors.WithMessage(err, "constants section")
	}
	g, err := graph.Deserialize(structural, constants)
	if err != nil {
		return nil, errors.Wrapf(ErrDeserialization, "decoding graph: %v", err)
	}
	g.Freeze()

	config = config.normalized()
	m := &Model{
		id:              uuid.New(),
		graph:           g,
		config:          config,
		ctx:             device.ContextFor(config.DeviceID),
		execs:           execs.normalized(),
		slots:           xsync.NewSemaphore(config.NumStreams),
		loadedFromCache: true,
	}
	m.exe = exec.NewExecutable(m.ctx, g)
	m.refs.Store(1)
	klog.V(1).Infof("imported model %s (%q): %d nodes on %s", m.id, g.Name(), g.NumNodes(), m.ctx)
	return m, nil
}

// readSection reads one length-prefixed section.
func readSection(r io.Reader) ([]byte, error) {
	var lenBytes [8]byte
	if _, err := io.ReadFull(r, lenBytes[:]); err != nil {
		return nil, errors.Wrapf(ErrDeserialization, "reading section length: %v", err)
	}
	length := binary.LittleEndian.Uint64(lenBytes[:])
	if length > maxSectionBytes {
		return nil, errors.Wrapf(ErrDeserialization, "section length %d exceeds the %d-byte limit", length, maxSectionBytes)
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrapf(ErrDeserialization, "reading %d-byte section: %v", length, err)
	}
	return payload, nil
}
