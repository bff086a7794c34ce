package goifs

import (
	"bytes"
	"testing"
	"time"

	"github.com/aligator/goifs/blockdev"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
)

const testBlockSize = 512

// testTime is the clock of all test volumes, so modification times are stable.
var testTime = time.Date(2021, time.March, 14, 15, 9, 26, 0, time.UTC)

var testVolumeID = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// testingVolume formats a new in-memory volume of blockCount blocks of 512 bytes.
// Everything logged goes to the returned hook.
func testingVolume(t *testing.T, blockCount uint64) (*Volume, *test.Hook) {
	t.Helper()

	dev, err := blockdev.NewMemory(testBlockSize, blockCount)
	if err != nil {
		t.Fatalf("could not create the device: %v", err)
	}

	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)

	v, err := Format(dev, WithLogger(logger), WithClock(func() time.Time { return testTime }), WithVolumeID(testVolumeID))
	if err != nil {
		t.Fatalf("could not format the volume: %v", err)
	}
	return v, hook
}

// writeTestFile creates path and writes content into it.
func writeTestFile(t *testing.T, v *Volume, path string, content []byte) {
	t.Helper()

	if err := v.Mkfile(path, 0); err != nil {
		t.Fatalf("Mkfile(%q) error = %v", path, err)
	}
	fd, err := v.Open(path)
	if err != nil {
		t.Fatalf("Open(%q) error = %v", path, err)
	}
	if _, err := v.Write(fd, content); err != nil {
		t.Fatalf("Write(%q) error = %v", path, err)
	}
	if err := v.Close(fd); err != nil {
		t.Fatalf("Close(%q) error = %v", path, err)
	}
}

// readTestFile returns the whole content of path.
func readTestFile(t *testing.T, v *Volume, path string) []byte {
	t.Helper()

	inode, err := v.resolve(path)
	if err != nil {
		t.Fatalf("resolve(%q) error = %v", path, err)
	}
	content, err := v.readFile(inode, 0, 0)
	if err != nil {
		t.Fatalf("readFile(%q) error = %v", path, err)
	}
	return content
}

// pattern returns n bytes which differ from block to block.
func pattern(n int) []byte {
	var buf bytes.Buffer
	for i := 0; buf.Len() < n; i++ {
		buf.WriteByte(byte(i % 251))
	}
	return buf.Bytes()
}
