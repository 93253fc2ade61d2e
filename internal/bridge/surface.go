package bridge

import (
	"errors"

	"github.com/MrWong99/proofline/pkg/editor"
	"github.com/MrWong99/proofline/pkg/editor/memdoc"
)

// remoteSurface is the engine's view of a remote editor. Reads are served
// from a local mirror; every successful write is applied to the mirror and
// then forwarded to the client through send.
type remoteSurface struct {
	doc  *memdoc.Document
	send func(ServerMessage) error
}

var (
	_ editor.Surface = (*remoteSurface)(nil)
	_ editor.Batcher = (*remoteSurface)(nil)
)

func newRemoteSurface(doc *memdoc.Document, send func(ServerMessage) error) *remoteSurface {
	return &remoteSurface{doc: doc, send: send}
}

func (r *remoteSurface) PlainText() string { return r.doc.PlainText() }

func (r *remoteSurface) IsAlive() bool { return r.doc.IsAlive() }

func (r *remoteSurface) ReplaceRange(from, to int, text string) error {
	return r.Batch(func(tx editor.Surface) error { return tx.ReplaceRange(from, to, text) })
}

func (r *remoteSurface) AddMark(from, to int, tag editor.Tag) error {
	return r.Batch(func(tx editor.Surface) error { return tx.AddMark(from, to, tag) })
}

func (r *remoteSurface) RemoveMark(from, to int, tag editor.Tag) error {
	return r.Batch(func(tx editor.Surface) error { return tx.RemoveMark(from, to, tag) })
}

// Batch applies fn to the mirror under its lock and then forwards the
// resulting operations in order. Operations applied before fn failed are
// still forwarded, matching the mirror.
func (r *remoteSurface) Batch(fn func(tx editor.Surface) error) error {
	rec := &recorder{}
	err := r.doc.Batch(func(tx editor.Surface) error {
		rec.tx = tx
		return fn(rec)
	})
	for _, m := range rec.msgs {
		if serr := r.send(m); serr != nil {
			return errors.Join(err, serr)
		}
	}
	return err
}

// recorder wraps a mirror transaction and records the client messages that
// reproduce it.
type recorder struct {
	tx   editor.Surface
	msgs []ServerMessage
}

func (r *recorder) PlainText() string { return r.tx.PlainText() }

func (r *recorder) IsAlive() bool { return r.tx.IsAlive() }

func (r *recorder) ReplaceRange(from, to int, text string) error {
	var old string
	if runes := []rune(r.tx.PlainText()); from >= 0 && from <= to && to <= len(runes) {
		old = string(runes[from:to])
	}
	if err := r.tx.ReplaceRange(from, to, text); err != nil {
		return err
	}
	r.msgs = append(r.msgs, ServerMessage{Type: TypeReplace, From: from, To: to, Text: text, Old: old})
	return nil
}

func (r *recorder) AddMark(from, to int, tag editor.Tag) error {
	if err := r.tx.AddMark(from, to, tag); err != nil {
		return err
	}
	r.msgs = append(r.msgs, ServerMessage{Type: TypeMark, From: from, To: to, Tag: tag})
	return nil
}

func (r *recorder) RemoveMark(from, to int, tag editor.Tag) error {
	if err := r.tx.RemoveMark(from, to, tag); err != nil {
		return err
	}
	r.msgs = append(r.msgs, ServerMessage{Type: TypeUnmark, From: from, To: to, Tag: tag})
	return nil
}
