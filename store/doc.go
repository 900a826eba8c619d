// Package store implements the persistent, append-only event log.
//
// The log lives in a single named file on a filesystem provided by a
// [Media]. The content is only ever appended to or truncated as a whole;
// there is no in-place edit.
//
// Filesystems are provided through go-billy, so the same store runs on an
// in-memory region ([MemMedia]) in tests and on a host directory
// ([DirMedia]) in simulation.
//
// # Mount Policy
//
// At boot [Store.MountOrFormat] mounts the media, formats it if the mount
// fails (blank or corrupt media), and mounts again. A failure of the second
// mount is fatal.
//
//	s, _ := store.New(store.NewDirMedia("/var/lib/keystash"), "", 256*1024)
//	if err := s.MountOrFormat(); err != nil {
//	    // pkg.IsFatal(err) == true
//	}
//	s.Append([]byte("abc"))
//	s.Dump(os.Stdout)
package store
