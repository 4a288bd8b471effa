// Command voicechat is a terminal voice client for the assistant. It captures
// the microphone, cuts utterances on silence and plays the spoken replies.
//
// Usage:
//
//	voicechat run --profile voice
//	voicechat schema audio_message
//
// Environment variables (a .env file is read when present):
//
//	VOICECHAT_PROFILES - path of a YAML profile file
//	VOICECHAT_URL      - overrides the profile's server URL
package main

import (
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
