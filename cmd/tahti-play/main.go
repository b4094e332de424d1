package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vsariola/tahti"
	"github.com/vsariola/tahti/audio"
	"github.com/vsariola/tahti/coords"
	"github.com/vsariola/tahti/oto"
	"github.com/vsariola/tahti/transport"
	"github.com/vsariola/tahti/transport/gomidi"
	"github.com/vsariola/tahti/version"
)

func main() {
	from := flag.Float64("from", 0, "Start playing at the given step.")
	loop := flag.String("loop", "", "Loop the given step range, start:end.")
	bpm := flag.Float64("bpm", 0, "Override the playback tempo, clamped to 60..300. Zero keeps the timeline tempo.")
	quiet := flag.Bool("q", false, "Do not print playhead positions.")
	midiOut := flag.String("midi", "", "Send MIDI clock to the first output whose name starts with the given prefix.")
	listMIDI := flag.Bool("list-midi", false, "List the available MIDI outputs and exit.")
	help := flag.Bool("h", false, "Show help.")
	versionFlag := flag.Bool("v", false, "Print version.")
	flag.Usage = printUsage
	flag.Parse()
	if *versionFlag {
		fmt.Println(version.VersionOrHash)
		os.Exit(0)
	}
	if *help {
		flag.Usage()
		os.Exit(0)
	}

	midiContext := gomidi.NewContext()
	if *listMIDI {
		for device := range midiContext.OutputDevices {
			fmt.Println(device)
		}
		midiContext.Close()
		os.Exit(0)
	}

	cfg, err := LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not load config: %v\n", err)
		os.Exit(1)
	}

	timeline := tahti.NewTimeline(tahti.DefaultBPM)
	if flag.NArg() > 0 {
		timeline, err = loadTimeline(flag.Arg(0))
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if err := timeline.Validate(); err != nil {
			fmt.Fprintf(os.Stderr, "invalid timeline %v: %v\n", flag.Arg(0), err)
			os.Exit(1)
		}
	}

	broker := audio.NewBroker()
	player := audio.NewPlayer(broker, timeline, cfg.Audio.SampleRate)
	player.ClickVolume = cfg.Audio.ClickVolume
	audioContext, err := oto.NewContext(cfg.Audio.SampleRate, cfg.Audio.Buffer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not acquire oto context: %v\n", err)
		os.Exit(1)
	}
	otoPlayer := audioContext.Play(player)

	engine := transport.NewEngine(player, log.Default())
	if *bpm != 0 {
		engine.SetBPM(*bpm)
	}
	if *loop != "" {
		start, end, err := parseLoop(*loop)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		engine.SetLoopRange(start, end)
		engine.SetLoopEnabled(true)
	}

	prefix := *midiOut
	if prefix == "" {
		prefix = cfg.MIDI.Output
	}
	if prefix != "" {
		midiContext.TryToOpenBy(prefix, false)
		if !midiContext.HasDeviceOpen() {
			fmt.Fprintf(os.Stderr, "no MIDI output starting with %q, continuing without clock sync\n", prefix)
		}
	}
	midiContext.Sync(engine)

	if !*quiet {
		cs := coords.New(&timeline, coords.DefaultStepWidth)
		engine.Subscribe(func(e transport.Event) {
			switch e.Kind {
			case transport.PositionUpdate:
				fmt.Printf("\r%v      ", cs.StepToBarBeat(e.State.CurrentPosition))
			case transport.StateChange:
				fmt.Printf("\r%s at %v\n", e.State.PlaybackState, cs.StepToBarBeat(e.State.CurrentPosition))
			}
		})
	}

	if !engine.PlayFrom(*from) {
		fmt.Fprintln(os.Stderr, "could not start playback")
		os.Exit(1)
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	<-interrupt
	fmt.Println()

	engine.Stop()
	midiContext.Close()
	if err := player.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "could not close the player: %v\n", err)
	}
	if err := otoPlayer.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "could not close the audio device: %v\n", err)
	}
}

// loadTimeline parses the file as .json first and .yml second, the same
// trick the usual song loaders use so both formats work without a flag.
func loadTimeline(filename string) (tahti.Timeline, error) {
	inputBytes, err := os.ReadFile(filename)
	if err != nil {
		return tahti.Timeline{}, fmt.Errorf("could not read file %v: %v", filename, err)
	}
	var timeline tahti.Timeline
	if errJSON := json.Unmarshal(inputBytes, &timeline); errJSON != nil {
		if errYaml := yaml.Unmarshal(inputBytes, &timeline); errYaml != nil {
			return tahti.Timeline{}, fmt.Errorf("the timeline could not be parsed as .json (%v) or .yml (%v)", errJSON, errYaml)
		}
	}
	return timeline, nil
}

func parseLoop(s string) (start, end float64, err error) {
	a, b, found := strings.Cut(s, ":")
	if !found {
		return 0, 0, fmt.Errorf("the loop range %q is not of the form start:end", s)
	}
	start, err = strconv.ParseFloat(a, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("could not parse loop start %q: %v", a, err)
	}
	end, err = strconv.ParseFloat(b, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("could not parse loop end %q: %v", b, err)
	}
	return start, end, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "Tahti command line transport: plays a metronome along a .yml/.json timeline file, following its tempo and time signature map.\nWith no file it clicks a plain 4/4 at 120 BPM.\nUsage: %s [flags] [timeline file]\n", os.Args[0])
	flag.PrintDefaults()
}
