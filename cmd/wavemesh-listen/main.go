// ABOUTME: Developer tool standing in for the phone
// ABOUTME: Attaches to a device's phone link, plays relayed PCM, can send a tone
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wavemesh/wavemesh-go/internal/audio"
	"github.com/wavemesh/wavemesh-go/internal/phonelink"
	"github.com/wavemesh/wavemesh-go/internal/playback"
	"github.com/wavemesh/wavemesh-go/internal/version"
	"github.com/wavemesh/wavemesh-go/internal/wire"
)

var (
	addr     = flag.String("addr", "localhost:8932", "Device phone link address (host:port)")
	volume   = flag.Int("volume", 100, "Playback volume 0-100")
	sendTone = flag.Bool("send-tone", false, "Also stream a 1kHz test tone to the device")
	rate     = flag.Int("rate", audio.DefaultSampleRate, "PCM sample rate")
)

func main() {
	flag.Parse()

	log.Printf("%s listener %s starting", version.Product, version.Version)

	phone, err := phonelink.Dial(*addr)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer phone.Close()

	sink := playback.NewSink()
	if err := sink.Initialize(*rate, 1); err != nil {
		log.Fatalf("audio output: %v", err)
	}
	defer sink.Close()
	sink.SetVolume(*volume)

	go func() {
		var bytesPlayed uint64
		for chunk := range phone.Notifications() {
			if err := sink.Write(chunk); err != nil {
				log.Printf("play: %v", err)
				continue
			}
			bytesPlayed += uint64(len(chunk))
			if bytesPlayed%(64*1024) < uint64(len(chunk)) {
				log.Printf("played %d KiB", bytesPlayed/1024)
			}
		}
	}()

	if *sendTone {
		go streamTone(phone)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	log.Printf("Listener stopped")
}

// streamTone writes a continuous 1kHz tone at a steady cadence, u-law
// companded in binary frames so a frame boundary is never guessed at.
func streamTone(phone *phonelink.Phone) {
	tone := audio.NewToneSource()
	chunk := phone.ChunkSize()
	if chunk <= 0 {
		chunk = phonelink.DefaultChunkSize
	}
	pcm := make([]byte, 2*chunk)
	ulaw := make([]byte, chunk)

	// Pace writes to real time: chunk u-law bytes cover chunk samples.
	period := time.Duration(chunk) * time.Second / time.Duration(*rate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var seq uint16
	for range ticker.C {
		n := tone.Read(pcm)
		m := audio.CompandUlaw(ulaw, pcm[:n])
		seq++
		if err := phone.Write(wire.EncodeBinary(wire.BinaryTypeUlaw, seq, ulaw[:m])); err != nil {
			log.Printf("tone write: %v", err)
			return
		}
	}
}
