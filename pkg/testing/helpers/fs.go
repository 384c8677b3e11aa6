// VN Tracker
// Copyright (c) 2025 The VN Tracker Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of VN Tracker.
//
// VN Tracker is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// VN Tracker is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with VN Tracker.  If not, see <http://www.gnu.org/licenses/>.

// Package helpers contains shared test utilities.
package helpers

import (
	"errors"
	"os"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
)

// ErrInjected is returned by FaultyFs operations that were told to fail.
var ErrInjected = errors.New("injected filesystem failure")

// FaultyFs wraps an afero.Fs and fails renames while armed. It simulates a
// disk that accepts the temporary write but cannot replace the target,
// the last step of an atomic store flush. Reads can be failed the same way
// to simulate a file locked by another program.
type FaultyFs struct {
	afero.Fs
	failRename atomic.Bool
	failWrites atomic.Bool
	failReads  atomic.Bool
	renames    atomic.Int32
}

// NewFaultyFs wraps base.
func NewFaultyFs(base afero.Fs) *FaultyFs {
	return &FaultyFs{Fs: base}
}

// FailRenames arms or disarms rename failures.
func (f *FaultyFs) FailRenames(fail bool) {
	f.failRename.Store(fail)
}

// FailWrites arms or disarms failures when opening files for writing.
func (f *FaultyFs) FailWrites(fail bool) {
	f.failWrites.Store(fail)
}

// FailReads arms or disarms permission errors when opening files for
// reading.
func (f *FaultyFs) FailReads(fail bool) {
	f.failReads.Store(fail)
}

// Renames returns how many renames succeeded.
func (f *FaultyFs) Renames() int {
	return int(f.renames.Load())
}

// Rename implements afero.Fs.
func (f *FaultyFs) Rename(oldname, newname string) error {
	if f.failRename.Load() {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: ErrInjected}
	}
	if err := f.Fs.Rename(oldname, newname); err != nil {
		return err //nolint:wrapcheck // passthrough
	}
	f.renames.Add(1)
	return nil
}

// Open implements afero.Fs.
func (f *FaultyFs) Open(name string) (afero.File, error) {
	if f.failReads.Load() {
		return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Open(name) //nolint:wrapcheck // passthrough
}

// OpenFile implements afero.Fs.
func (f *FaultyFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	if f.failWrites.Load() && flag&(os.O_WRONLY|os.O_RDWR) != 0 {
		return nil, &os.PathError{Op: "open", Path: name, Err: ErrInjected}
	}
	return f.Fs.OpenFile(name, flag, perm) //nolint:wrapcheck // passthrough
}

// ListFiles returns the names of the entries in dir that start with prefix.
func ListFiles(fs afero.Fs, dir, prefix string) ([]string, error) {
	entries, err := afero.ReadDir(fs, dir)
	if err != nil {
		return nil, err //nolint:wrapcheck // test helper
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), prefix) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}
