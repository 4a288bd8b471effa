package main

const scopeName = "github.com/koscakluka/ema-voice/cmd/voicechat"
