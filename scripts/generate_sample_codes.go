package main

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// generateSampleCodes creates sample promo-code files for local development.
// Codes must be 8-10 characters to pass validation.
func main() {
	dataDir := "data/promo"

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	codes := map[string][]string{
		"codes1.gz": {
			"SAVE10NOW",
			"WELCOME99",
			"DASHAIN25",
			"NEWUSER10",
			"FLASH2026",
		},
		"codes2.gz": {
			"TIHAR2026",
			"MEGA10OFF",
			"FESTIVE26",
			"LOYALTY10",
			"WEEKEND10",
		},
	}

	for filename, list := range codes {
		filePath := filepath.Join(dataDir, filename)

		if err := createCodeFile(filePath, list); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d codes\n", filePath, len(list))
	}

	fmt.Println("\nSample promo code files created successfully!")
}

// createCodeFile writes a gzipped file with one code per line.
func createCodeFile(filePath string, codes []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, code := range codes {
		if _, err := gzipWriter.Write([]byte(code + "\n")); err != nil {
			return fmt.Errorf("failed to write code: %w", err)
		}
	}

	return nil
}
