package config

// CategoryWeights orders the categories in /help.
var CategoryWeights = map[string]int{
	"🕯️ Information": 0,
	"🧠 Memory":       20,
	"🎵 Music":        39,
	"⚙️ Settings":    50,
	"🛠️ Maintenance": 60,
}
