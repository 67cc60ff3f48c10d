package utils

import (
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

const rotatedSuffixFormat = "20060102-150405"

// RotateWriter writes to the log file, renaming it to a timestamped file every rotatePeriod.
// Rotated files older than retainPeriod are removed
type RotateWriter struct {
	lock         sync.Mutex
	filename     string
	fp           *os.File
	rotatePeriod time.Duration
	retainPeriod time.Duration
	nextRotation time.Time
	now          func() time.Time
}

func NewRotateWriter(dir, fname string, rotatePeriod, retainPeriod time.Duration) (*RotateWriter, error) {
	w := &RotateWriter{
		filename:     path.Join(dir, fname),
		rotatePeriod: rotatePeriod,
		retainPeriod: retainPeriod,
		now:          time.Now,
	}
	if err := w.Rotate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *RotateWriter) Write(output []byte) (int, error) {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.rotatePeriod > 0 && w.now().After(w.nextRotation) {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}
	return w.fp.Write(output)
}

func (w *RotateWriter) Rotate() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.rotate()
}

func (w *RotateWriter) Close() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	if w.fp == nil {
		return nil
	}
	err := w.fp.Close()
	w.fp = nil
	return err
}

func (w *RotateWriter) rotate() error {
	if w.fp != nil {
		err := w.fp.Close()
		w.fp = nil
		if err != nil {
			return err
		}
	}
	nowis := w.now()
	if st, err := os.Stat(w.filename); err == nil && st.Size() > 0 {
		if err = os.Rename(w.filename, w.filename+"."+nowis.Format(rotatedSuffixFormat)); err != nil {
			return errors.Wrapf(err, "rotating %v", w.filename)
		}
	}
	var err error
	w.fp, err = os.OpenFile(w.filename, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	w.nextRotation = nowis.Add(w.rotatePeriod)
	w.removeExpired(nowis)
	return nil
}

func (w *RotateWriter) removeExpired(nowis time.Time) {
	if w.retainPeriod <= 0 {
		return
	}
	rotated, _ := filepath.Glob(w.filename + ".*")
	for _, f := range rotated {
		ts, err := time.ParseInLocation(rotatedSuffixFormat, strings.TrimPrefix(f, w.filename+"."), nowis.Location())
		if err != nil {
			continue
		}
		if nowis.Sub(ts) > w.retainPeriod {
			_ = os.Remove(f)
		}
	}
}
