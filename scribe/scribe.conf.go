package main

const (
	defaultConfigFileContent = `

# root directory for scribe sessions, logs, etc
root = {{ .Root }}

# Where recorded sessions are stored. Defaults to <root>/sessions.
# sessionsdir =

# Expose prometheus metrics on this address (e.g. 127.0.0.1:9187).
# promlisten =

[audio]

# Loopback capture device. Leave unset to pick the monitor of the default
# playback device. Run scribe -listdevices to see candidates.
# device =

# Mix the microphone into the recording.
mixmic = false

# Microphone device used when mixmic is on. Leave unset to use the default
# capture device.
# micdevice =

# Per-source gains applied before mixing.
# loopbackgain = 1.0
# micgain = 1.0

[segmenter]

# How much audio must accumulate before a cut at a pause is considered, and
# how much before a cut is forced regardless of pauses.
minduration = 60s
maxduration = 90s

# Peak level under which the last silencetail of the buffer counts as a
# pause in speech.
silencethreshold = 0.01
silencetail = 500ms

# Peak level under which a whole segment counts as silent. After
# maxsilentsegments consecutive silent segments the recording stops on its
# own.
silencechunkthreshold = 0.005
maxsilentsegments = 1

# Archive format for the per-segment audio files: wav or ogg.
archiveformat = wav

[transcriber]

# Base address of the whisper server (OpenAI-compatible
# /v1/audio/transcriptions endpoint).
url = {{ .WhisperURL }}

# Model requested from the server.
model = large-v3

# Pin the transcription language instead of per-segment detection.
# language = en

# Bearer token, if the server needs one.
# apikey =

# File with one vocabulary term per line (project names, acronyms). Terms
# are fed to the recognizer as a hint and the file is re-read when it
# changes. Defaults to <root>/jargon.txt.
# jargonfile =

[synthesis]

# Generate meeting notes as soon as the recording stops.
auto = false

# Ollama server and model used to write the notes.
ollamaurl = {{ .OllamaURL }}
model = qwen3:8b

# Copy finished notes into this Logseq pages directory.
# pagesdir =

# logging and debug
[log]

# logfile contains log file name location. Set to an empty value to not
# save logs to a file.
logfile = {{ .LogFile }}

# How many log files to keep about the internal operations. 0 means keep all
# log files.
maxlogfiles = 0

# how verbose to be
debuglevel = info
`
)
