// Package events defines the typed voice-turn event contract.
//
// Event kinds are grouped by receiver-facing namespaces:
//
//   - capture.*
//   - voice_activity.*
//   - transport.*
//   - assistant_playback.*
//   - turn_state.*
//
// capture events
//
//   - CaptureStarted (capture.started): the microphone was acquired and the
//     utterance buffer reset.
//   - CaptureChunk (capture.chunk): a chunk was appended to the utterance.
//   - CaptureStopped (capture.stopped): the microphone was released; Discarded
//     reports whether the partial utterance was thrown away.
//
// voice_activity events
//
//   - ActivitySampled (voice_activity.sampled): loudness sample for one VAD
//     tick, emitted on every tick for level meters.
//   - UserSpeechStarted (voice_activity.speech_started): raw speech onset.
//   - UserSpeechEnded (voice_activity.speech_ended): raw speech offset. This is
//     not the end of the turn.
//   - SilenceExceeded (voice_activity.silence_exceeded): continuous silence
//     reached the grace period with captured audio; the turn is complete.
//
// transport events
//
//   - TransportConnectivityChanged (transport.connectivity_changed):
//     connected, disconnected, connect_error or unavailable.
//   - UtteranceSent (transport.utterance_sent): the utterance was handed to
//     the transport.
//   - ReplyReceived (transport.reply_received): the assistant replied. Emitted
//     for every reply, including ones that will not be played.
//   - LanguageDetected (transport.language_detected): the assistant reported
//     the spoken language.
//   - ServerStatus (transport.server_status): informational status frame.
//   - ServerError (transport.server_error): the assistant reported an error.
//   - HistoryReceived (transport.history_received): chat history snapshot.
//
// assistant_playback events
//
//   - AssistantPlaybackStarted (assistant_playback.started)
//   - AssistantPlaybackEnded (assistant_playback.ended): fires exactly once per
//     started playback, including interrupted ones.
//
// turn_state events
//
//   - TurnStateChanged (turn_state.changed): the controller moved between
//     states.
//   - TurnFailed (turn_state.failed): a failure moved the controller to Error
//     or Disconnected, or left it Idle after a device failure.
package events
