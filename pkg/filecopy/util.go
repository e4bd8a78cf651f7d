package filecopy

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/cespare/xxhash"
	"github.com/rs/zerolog/log"
)

func extractBaseName(path string) string {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	base := name
	if len(ext) > 0 && len(name) > len(ext) {
		base = name[:len(name)-len(ext)]
	}
	if base == "" || base == ext {
		base = "file"
	}
	return base
}

func hashString(s string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(s))
}

// versionOf 大小 + 修改时间决定副本版本，WAL 文件的变化也算新版本
func versionOf(src string, info os.FileInfo) string {
	meta := fmt.Sprintf("%d-%d", info.Size(), info.ModTime().UnixNano())
	for _, suffix := range Sidecars {
		if s, err := os.Stat(src + suffix); err == nil {
			meta += fmt.Sprintf("|%s:%d-%d", suffix, s.Size(), s.ModTime().UnixNano())
		}
	}
	return hashString(meta)
}

// atomicCopyFile 先写同目录临时文件再 rename
func atomicCopyFile(src, dst string, info os.FileInfo) (err error) {
	dir := filepath.Dir(dst)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "copy_tmp_*")
	if err != nil {
		return err
	}
	tmpName := tmpFile.Name()
	defer func() {
		_ = tmpFile.Close()
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	buf := make([]byte, 32*1024)
	if _, err = io.CopyBuffer(tmpFile, srcFile, buf); err != nil {
		return err
	}
	if err = tmpFile.Sync(); err != nil {
		return err
	}
	if err = tmpFile.Close(); err != nil {
		return err
	}
	if cerr := os.Chtimes(tmpName, time.Now(), info.ModTime()); cerr != nil {
		log.Warn().Err(cerr).Str("file", tmpName).Msg("filecopy: set modtime on temp file failed")
	}
	return os.Rename(tmpName, dst)
}
