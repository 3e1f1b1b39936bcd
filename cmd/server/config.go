package main

import "fmt"

type Config struct {
	Host              string `env:"HOST,default=0.0.0.0"`
	Port              int    `env:"PORT,default=5000"`
	CertFile          string `env:"CERT_FILE,required=true"`
	KeyFile           string `env:"KEY_FILE,required=true"`
	BadgerFilepath    string `env:"BADGER_FILEPATH,required=true"`
	BlugeFilepath     string `env:"BLUGE_FILEPATH,required=true"`
	UploadsDir        string `env:"UPLOADS_DIR,default=uploads"`
	LogLevel          string `env:"LOG_LEVEL,default=INFO"`
	CensoredWordsFile string `env:"CENSORED_WORDS_FILE"`
	CensoredChar      string `env:"CENSORED_CHAR,default=*"`
	MaxFrameSize      uint32 `env:"MAX_FRAME_SIZE,default=16777216"`
	SearchPageSize    int    `env:"SEARCH_PAGE_SIZE,default=100"`
}

func (c Config) CensoredRune() (rune, error) {
	r := []rune(c.CensoredChar)
	if len(r) != 1 {
		return 0, fmt.Errorf("CENSORED_CHAR must be a single character, got %q", c.CensoredChar)
	}
	return r[0], nil
}
