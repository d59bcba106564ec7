package statusled

import (
	"os"
	"strconv"
)

func writeBrightness(path string, value uint8) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(strconv.Itoa(int(value)))
	return err
}
