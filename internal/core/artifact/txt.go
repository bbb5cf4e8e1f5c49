// Copyright (c) 2026 Shuhai. All rights reserved.

package artifact

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

/*
writeTxt concatenates the completed chapters into one plain-text file,
with a volume banner whenever the volume name changes and a blank line
between chapters. Written via a temp file and rename.
*/
func writeTxt(path string, sections []section) error {
	temp, err := os.CreateTemp(filepath.Dir(path), ".txt-*")
	if err != nil {
		return fmt.Errorf("artifact: create temp txt: %w", err)
	}
	defer os.Remove(temp.Name())

	writer := bufio.NewWriter(temp)

	currentVolume := ""
	for position, chapter := range sections {
		if chapter.Volume != "" && chapter.Volume != currentVolume {
			currentVolume = chapter.Volume
			fmt.Fprintf(writer, "==== %s ====\n\n", currentVolume)
		}

		if position > 0 {
			writer.WriteString("\n")
		}
		fmt.Fprintf(writer, "%s\n\n", chapter.Title)
		writer.WriteString(strings.TrimRight(chapter.Body, "\n"))
		writer.WriteString("\n")
	}

	if err := writer.Flush(); err != nil {
		return err
	}
	if err := temp.Close(); err != nil {
		return err
	}

	return os.Rename(temp.Name(), path)
}
