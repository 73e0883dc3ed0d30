package lexicon

var builtinEnglish = Lexicon{
	Positive: []string{
		"barrier", "barriers", "constraint", "constraints", "bottleneck",
		"bottlenecks", "gap", "gaps", "unmet need", "unmet needs", "risk",
		"risks", "vulnerability", "vulnerabilities", "inequality", "shortage",
		"lack of", "needs assessment", "baseline", "problem statement",
		"context", "rationale", "challenge", "challenges", "scarcity",
	},
	Negative: []string{
		"will implement", "will develop", "solution", "technology", "deploy",
		"rollout", "build a platform", "deliver a tool", "pilot", "prototype",
		"intervention", "implement", "develop", "deployment", "launch",
		"introduce", "establish",
	},
	Stopwords: []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "of", "in", "on",
		"at", "to", "for", "with", "by", "from", "as", "is", "are", "was",
		"were", "be", "been", "being", "it", "its", "this", "that", "these",
		"those", "there", "here", "not", "no", "do", "does", "did", "have",
		"has", "had", "will", "would", "can", "could", "should", "about",
		"into", "over", "under", "between", "their", "they", "them", "we",
		"our", "you", "your",
	},
}

var builtinDutch = Lexicon{
	Positive: []string{
		"uitdaging", "uitdagingen", "knelpunt", "knelpunten", "belemmering",
		"belemmeringen", "gat", "gaten", "onvervulde behoefte",
		"onvervulde behoeften", "risico", "risico's", "kwetsbaarheid",
		"ongelijkheid", "tekort", "gebrek aan", "behoefteanalyse",
		"basislijnstudie", "probleemstelling", "context", "rationale",
	},
	Negative: []string{
		"we gaan", "implementeren", "ontwikkelen", "uitrollen", "pilot",
		"prototype", "zullen", "gaan", "platform", "tool", "interventie",
		"lanceren", "introduceren",
	},
	Stopwords: []string{
		"de", "het", "een", "en", "of", "maar", "als", "dan", "van", "in",
		"op", "aan", "naar", "voor", "met", "door", "uit", "bij", "is",
		"zijn", "was", "waren", "wordt", "worden", "er", "hier", "daar",
		"niet", "geen", "wel", "ook", "dit", "dat", "deze", "die", "wij",
		"ze", "hun", "onze", "je", "jullie",
	},
}
