package store

import (
	"encoding/csv"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// LoadWordsFile reads extra dictionary entries from a CSV file, one word
// per row (a second count column is tolerated and ignored). Missing or
// broken rows are skipped; a missing file just yields no extras.
func LoadWordsFile(filePath string) []string {
	if filePath == "" {
		return nil
	}
	f, err := os.Open(filePath)
	if err != nil {
		log.Warn().Err(err).Str("path", filePath).Msg("[LoadWordsFile] unable to read words file")
		return nil
	}
	defer f.Close()

	csvReader := csv.NewReader(f)
	csvReader.FieldsPerRecord = -1

	var words []string
	for {
		record, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Str("path", filePath).Msg("[LoadWordsFile] skipping bad record")
			continue
		}
		if len(record) == 0 || record[0] == "" {
			continue
		}
		words = append(words, record[0])
	}

	log.Info().Int("count", len(words)).Str("path", filePath).Msg("[LoadWordsFile] words loaded")
	return words
}
