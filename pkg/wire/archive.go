// Copyright (C) 2015-2020 the Gprovision Authors. All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.
//
// SPDX-License-Identifier: BSD-3-Clause
//

package wire

import (
	"bufio"
	"encoding/binary"
	"io"
	"io/fs"
	"os"
	fp "path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/cespare/xxhash/v2"
	"github.com/clonewave/imgclone/pkg/imgerr"
	"golang.org/x/sys/unix"
)

// recordKind tags each archive record. This plays the same role as a cpio
// entry type, but adds a dedicated hardlink kind and a per-record xattr
// map, which u-root's cpio implementation (used elsewhere in this codebase
// family for initramfs images) has no room for - see DESIGN.md.
type recordKind uint8

const (
	kindFile recordKind = iota
	kindDir
	kindSymlink
	kindHardlink
	kindEnd
)

// ArchiveWriter walks rootPath in deterministic lexicographic order,
// emitting one record per entry followed by an end marker and an 8-byte
// big-endian xxHash64 checksum of everything written up to and including
// that marker. Symlinks are stored by target text; multiple names for the
// same inode are collapsed to a single hardlink record referencing the
// first path seen for that inode.
func ArchiveWriter(sink io.Writer, rootPath string) error {
	h := xxhash.New()
	w := bufio.NewWriter(io.MultiWriter(sink, h))

	type entry struct {
		relPath string
		absPath string
	}
	var entries []entry
	err := fp.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := fp.Rel(rootPath, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		entries = append(entries, entry{relPath: filepathToSlash(rel), absPath: path})
		return nil
	})
	if err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "walking "+rootPath, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].relPath < entries[j].relPath })

	seenInode := map[uint64]string{} // dev<<32 ^ ino -> first relPath
	for _, e := range entries {
		fi, err := os.Lstat(e.absPath)
		if err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "stat "+e.absPath, err)
		}
		if err := writeRecord(w, e.relPath, e.absPath, fi, seenInode); err != nil {
			return err
		}
	}
	if err := writeRecordHeader(w, kindEnd, "", 0, 0, 0, 0, nil); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "writing end marker", err)
	}
	if err := w.Flush(); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "flushing archive", err)
	}
	var trailer [8]byte
	binary.BigEndian.PutUint64(trailer[:], h.Sum64())
	if _, err := sink.Write(trailer[:]); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "writing archive checksum", err)
	}
	return nil
}

func filepathToSlash(p string) string { return strings.ReplaceAll(p, string(fp.Separator), "/") }

func inodeKey(fi os.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	if st.Nlink < 2 {
		return 0, false
	}
	return uint64(st.Dev)<<32 ^ st.Ino, true
}

func writeRecord(w *bufio.Writer, relPath, absPath string, fi os.FileInfo, seenInode map[uint64]string) error {
	mode := uint32(fi.Mode())
	uid, gid := ownerOf(fi)
	xattrs := readXattrs(absPath, fi.Mode())

	if fi.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(absPath)
		if err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "readlink "+absPath, err)
		}
		return writeRecordHeader(w, kindSymlink, relPath, mode, uid, gid, uint64(len(target)), xattrs, []byte(target)...)
	}
	if fi.IsDir() {
		return writeRecordHeader(w, kindDir, relPath, mode, uid, gid, 0, xattrs)
	}
	if key, ok := inodeKey(fi); ok {
		if first, seen := seenInode[key]; seen {
			return writeRecordHeader(w, kindHardlink, relPath, mode, uid, gid, uint64(len(first)), xattrs, []byte(first)...)
		}
		seenInode[key] = relPath
	}
	f, err := os.Open(absPath)
	if err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "open "+absPath, err)
	}
	defer f.Close()
	if err := writeRecordHeaderStream(w, kindFile, relPath, mode, uid, gid, uint64(fi.Size()), xattrs, f); err != nil {
		return err
	}
	return nil
}

func ownerOf(fi os.FileInfo) (uid, gid uint32) {
	if st, ok := fi.Sys().(*syscall.Stat_t); ok {
		return st.Uid, st.Gid
	}
	return 0, 0
}

func readXattrs(path string, mode os.FileMode) map[string][]byte {
	if mode&os.ModeSymlink != 0 {
		return nil
	}
	names := make([]byte, 4096)
	n, err := unix.Listxattr(path, names)
	if err != nil || n <= 0 {
		return nil
	}
	out := map[string][]byte{}
	for _, name := range strings.Split(string(names[:n-1]), "\x00") {
		if name == "" {
			continue
		}
		buf := make([]byte, 4096)
		vn, err := unix.Getxattr(path, name, buf)
		if err != nil {
			continue
		}
		out[name] = append([]byte(nil), buf[:vn]...)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// writeRecordHeader writes a record whose payload is already in memory
// (extra), used for directories, symlinks, hardlinks and the end marker.
func writeRecordHeader(w *bufio.Writer, kind recordKind, path string, mode uint32, uid, gid uint32, size uint64, xattrs map[string][]byte, extra ...byte) error {
	if err := writeRecordFields(w, kind, path, mode, uid, gid, size, xattrs); err != nil {
		return err
	}
	if len(extra) > 0 {
		if _, err := w.Write(extra); err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "writing record payload", err)
		}
	}
	return nil
}

// writeRecordHeaderStream is like writeRecordHeader but copies content
// from r rather than an in-memory slice, for regular file bodies.
func writeRecordHeaderStream(w *bufio.Writer, kind recordKind, path string, mode uint32, uid, gid uint32, size uint64, xattrs map[string][]byte, r io.Reader) error {
	if err := writeRecordFields(w, kind, path, mode, uid, gid, size, xattrs); err != nil {
		return err
	}
	if _, err := io.CopyN(w, r, int64(size)); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "copying content for "+path, err)
	}
	return nil
}

func writeRecordFields(w *bufio.Writer, kind recordKind, path string, mode uint32, uid, gid uint32, size uint64, xattrs map[string][]byte) error {
	var hdr [1 + 2 + 4 + 4 + 4 + 8]byte
	hdr[0] = byte(kind)
	binary.BigEndian.PutUint16(hdr[1:3], uint16(len(path)))
	binary.BigEndian.PutUint32(hdr[3:7], mode)
	binary.BigEndian.PutUint32(hdr[7:11], uid)
	binary.BigEndian.PutUint32(hdr[11:15], gid)
	binary.BigEndian.PutUint64(hdr[15:23], size)
	if _, err := w.Write(hdr[:]); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "writing record header", err)
	}
	if _, err := io.WriteString(w, path); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "writing record path", err)
	}
	var xc [2]byte
	binary.BigEndian.PutUint16(xc[:], uint16(len(xattrs)))
	if _, err := w.Write(xc[:]); err != nil {
		return imgerr.Wrap(imgerr.CreateImage, "writing xattr count", err)
	}
	names := make([]string, 0, len(xattrs))
	for name := range xattrs {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		val := xattrs[name]
		var kl, vl [2]byte
		binary.BigEndian.PutUint16(kl[:], uint16(len(name)))
		binary.BigEndian.PutUint16(vl[:], uint16(len(val)))
		if _, err := w.Write(kl[:]); err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "writing xattr key len", err)
		}
		if _, err := io.WriteString(w, name); err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "writing xattr key", err)
		}
		if _, err := w.Write(vl[:]); err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "writing xattr val len", err)
		}
		if _, err := w.Write(val); err != nil {
			return imgerr.Wrap(imgerr.CreateImage, "writing xattr val", err)
		}
	}
	return nil
}

type recordHeader struct {
	kind        recordKind
	path        string
	mode        uint32
	uid, gid    uint32
	size        uint64
	xattrs      map[string][]byte
}

func readRecordHeader(r io.Reader) (recordHeader, error) {
	var hdr [1 + 2 + 4 + 4 + 4 + 8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading record header", err)
	}
	kind := recordKind(hdr[0])
	pathLen := binary.BigEndian.Uint16(hdr[1:3])
	mode := binary.BigEndian.Uint32(hdr[3:7])
	uid := binary.BigEndian.Uint32(hdr[7:11])
	gid := binary.BigEndian.Uint32(hdr[11:15])
	size := binary.BigEndian.Uint64(hdr[15:23])

	pathBuf := make([]byte, pathLen)
	if pathLen > 0 {
		if _, err := io.ReadFull(r, pathBuf); err != nil {
			return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading record path", err)
		}
	}

	var xc [2]byte
	if _, err := io.ReadFull(r, xc[:]); err != nil {
		return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading xattr count", err)
	}
	count := binary.BigEndian.Uint16(xc[:])
	var xattrs map[string][]byte
	if count > 0 {
		xattrs = make(map[string][]byte, count)
		for i := uint16(0); i < count; i++ {
			var kl [2]byte
			if _, err := io.ReadFull(r, kl[:]); err != nil {
				return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading xattr key len", err)
			}
			key := make([]byte, binary.BigEndian.Uint16(kl[:]))
			if _, err := io.ReadFull(r, key); err != nil {
				return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading xattr key", err)
			}
			var vl [2]byte
			if _, err := io.ReadFull(r, vl[:]); err != nil {
				return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading xattr val len", err)
			}
			val := make([]byte, binary.BigEndian.Uint16(vl[:]))
			if _, err := io.ReadFull(r, val); err != nil {
				return recordHeader{}, imgerr.Wrap(imgerr.InvalidImage, "reading xattr val", err)
			}
			xattrs[string(key)] = val
		}
	}

	switch kind {
	case kindFile, kindDir, kindSymlink, kindHardlink, kindEnd:
	default:
		return recordHeader{}, imgerr.Newf(imgerr.InvalidImage, "unknown record kind %d", kind)
	}

	return recordHeader{
		kind:   kind,
		path:   string(pathBuf),
		mode:   mode,
		uid:    uid,
		gid:    gid,
		size:   size,
		xattrs: xattrs,
	}, nil
}

// ArchiveReader materializes the tree encoded by ArchiveWriter under
// rootPath, creating directories as needed. Fails with InvalidImage on
// truncation, a checksum mismatch, or an unknown record kind. The
// checksum is captured off the tee the instant the end marker is parsed,
// before the trailing 8 bytes are read off the same reader, so the
// comparison never includes bytes bufio has merely prefetched.
func ArchiveReader(source io.Reader, rootPath string) error {
	h := xxhash.New()
	r := io.TeeReader(bufio.NewReader(source), h)
	if err := os.MkdirAll(rootPath, 0755); err != nil {
		return imgerr.Wrap(imgerr.RestoreImage, "creating root "+rootPath, err)
	}
	for {
		hdr, err := readRecordHeader(r)
		if err != nil {
			return err
		}
		if hdr.kind == kindEnd {
			want := h.Sum64()
			var trailer [8]byte
			if _, err := io.ReadFull(r, trailer[:]); err != nil {
				return imgerr.Wrap(imgerr.InvalidImage, "reading archive checksum", err)
			}
			if binary.BigEndian.Uint64(trailer[:]) != want {
				return imgerr.New(imgerr.InvalidImage, "archive checksum mismatch")
			}
			return nil
		}
		dst := fp.Join(rootPath, fp.FromSlash(hdr.path))
		switch hdr.kind {
		case kindDir:
			if err := os.MkdirAll(dst, os.FileMode(hdr.mode).Perm()); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "mkdir "+dst, err)
			}
		case kindSymlink:
			target := make([]byte, hdr.size)
			if _, err := io.ReadFull(r, target); err != nil {
				return imgerr.Wrap(imgerr.InvalidImage, "reading symlink target for "+hdr.path, err)
			}
			_ = os.Remove(dst)
			if err := os.MkdirAll(fp.Dir(dst), 0755); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "creating parent for "+dst, err)
			}
			if err := os.Symlink(string(target), dst); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "symlink "+dst, err)
			}
		case kindHardlink:
			firstRel := make([]byte, hdr.size)
			if _, err := io.ReadFull(r, firstRel); err != nil {
				return imgerr.Wrap(imgerr.InvalidImage, "reading hardlink target for "+hdr.path, err)
			}
			src := fp.Join(rootPath, fp.FromSlash(string(firstRel)))
			if err := os.MkdirAll(fp.Dir(dst), 0755); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "creating parent for "+dst, err)
			}
			if err := os.Link(src, dst); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "link "+dst, err)
			}
		case kindFile:
			if err := os.MkdirAll(fp.Dir(dst), 0755); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "creating parent for "+dst, err)
			}
			f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.mode).Perm())
			if err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "creating "+dst, err)
			}
			if _, err := io.CopyN(f, r, int64(hdr.size)); err != nil {
				f.Close()
				return imgerr.Wrap(imgerr.InvalidImage, "reading content for "+hdr.path, err)
			}
			if err := f.Close(); err != nil {
				return imgerr.Wrap(imgerr.RestoreImage, "closing "+dst, err)
			}
			_ = os.Chown(dst, int(hdr.uid), int(hdr.gid))
		default:
			return imgerr.Newf(imgerr.InvalidImage, "unhandled record kind %d", hdr.kind)
		}
		for name, val := range hdr.xattrs {
			_ = unix.Setxattr(dst, name, val, 0)
		}
		if hdr.kind != kindSymlink {
			_ = os.Chown(dst, int(hdr.uid), int(hdr.gid))
		}
	}
}
