/*
Copyright 2021 Hewlett Packard Enterprise Development LP

Permission is hereby granted, free of charge, to any person obtaining a
copy of this software and associated documentation files (the "Software"),
to deal in the Software without restriction, including without limitation
the rights to use, copy, modify, merge, publish, distribute, sublicense,
and/or sell copies of the Software, and to permit persons to whom the
Software is furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.

IN NO EVENT SHALL THE AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM,
DAMAGES OR OTHER LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR
OTHERWISE, ARISING FROM, OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE
USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// framewiredemo declares a small magic+dispatch wire protocol and feeds
// a stream of packed frames, split into arbitrary chunks, through a
// Framer to show recovery continuing across an injected byte of noise.
// It takes no flags and no config file, per the library's no-CLI,
// no-config non-goals: it is a fixed walkthrough, not a tool.
package main

import (
	"os"

	log "github.com/sirupsen/logrus"

	"github.com/hpe-forks/framewire"
	"github.com/hpe-forks/framewire/codec"
	"github.com/hpe-forks/framewire/frame"
	"github.com/hpe-forks/framewire/framer"
	"github.com/hpe-forks/framewire/pack"
	"github.com/hpe-forks/framewire/schema"
)

const (
	msgPing uint64 = 1
	msgData uint64 = 2
)

func buildProtocol() *schema.Structure {
	ping := schema.MustBuild(schema.New("ping").
		Uint("sequence", codec.W4, codec.BigEndian))

	data := schema.MustBuild(schema.New("data").
		GreedyPayload("payload"))

	return schema.MustBuild(schema.New("envelope").
		Magic("magic", []byte("FW01")).
		LengthField("frame_len", codec.W2, codec.BigEndian, "body").
		DispatchField("kind", codec.W1, codec.BigEndian, "body").
		DispatchTarget("body", "kind", "frame_len", map[uint64]*schema.Structure{
			msgPing: ping,
			msgData: data,
		}))
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetOutput(os.Stdout)

	envelope := buildProtocol()

	pingFrame := frame.New()
	pingFrame.SetUint64("kind", msgPing)
	pingBody := frame.New()
	pingBody.SetUint64("sequence", 42)
	pingFrame.SetFrame("body", pingBody)
	pingFrame.SetBytes("magic", []byte("FW01"))

	dataFrame := frame.New()
	dataFrame.SetUint64("kind", msgData)
	dataBody := frame.New()
	dataBody.SetBytes("payload", []byte("hello framewire"))
	dataFrame.SetFrame("body", dataBody)
	dataFrame.SetBytes("magic", []byte("FW01"))

	pingBytes, err := pack.Pack(envelope, pingFrame)
	if err != nil {
		log.WithError(err).Fatal("failed to pack ping frame")
	}
	dataBytes, err := pack.Pack(envelope, dataFrame)
	if err != nil {
		log.WithError(err).Fatal("failed to pack data frame")
	}

	log.Info("packed ping frame:")
	framewire.DumpBytes(os.Stdout, pingBytes)
	log.Info("packed data frame:")
	framewire.DumpBytes(os.Stdout, dataBytes)

	stream := append([]byte{}, pingBytes...)
	stream = append(stream, 0xff) // noise byte the framer must resync past
	stream = append(stream, dataBytes...)

	received := 0
	f, err := framer.New(envelope, func(fr *frame.Frame) {
		received++
		kind, _ := fr.GetUint64("kind")
		log.WithFields(log.Fields{"kind": kind}).Info("framer delivered frame")
	}, framer.WithErrorHandler(func(err error) {
		log.WithError(err).Warn("framer reported a resync event")
	}), framer.WithMaxBuffer(4096))
	if err != nil {
		log.WithError(err).Fatal("failed to construct framer")
	}

	chunkSize := 5
	for off := 0; off < len(stream); off += chunkSize {
		end := off + chunkSize
		if end > len(stream) {
			end = len(stream)
		}
		if err := f.Feed(stream[off:end]); err != nil {
			log.WithError(err).Fatal("framer entered a fatal state")
		}
	}

	log.WithFields(log.Fields{"frames": received}).Info("demo complete")
}
