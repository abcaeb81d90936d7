package intent

// Lang tags a phrase table with the language it was written for.
type Lang string

const (
	LangEN Lang = "en"
	LangPT Lang = "pt"
)

type phraseSet struct {
	Lang    Lang
	Phrases []string
}

// Phrases are written lowercase with straight apostrophes. Diacritics are folded
// at init so they compare against Normalize output.

var completedPhrases = []phraseSet{
	{LangEN, []string{
		"done", "finished", "completed", "i did it", "i finished", "i've finished",
		"i have finished", "i completed", "i've completed", "i have completed",
		"i'm done", "im done", "all done", "it's done", "task done", "mission accomplished",
	}},
	{LangPT, []string{
		"feito", "pronto", "concluído", "concluido", "concluí", "conclui", "terminei",
		"finalizei", "consegui", "eu consegui", "já fiz", "ja fiz", "tarefa feita",
	}},
}

var couldntPhrases = []phraseSet{
	{LangEN, []string{
		"couldn't do it", "couldnt do it", "could not do it", "i couldn't", "i couldnt",
		"i could not", "i failed", "i didn't", "i didnt", "i did not", "i wasn't able",
		"i was not able", "didn't manage", "not done",
	}},
	{LangPT, []string{
		"não consegui", "nao consegui", "não deu", "nao deu", "falhei", "não fiz",
		"nao fiz", "não foi possível", "nao foi possivel",
	}},
}

var adjustPhrases = []phraseSet{
	{LangEN, []string{
		"adjust", "change", "modify", "can you adjust", "could you adjust",
		"can you change", "could you change", "make it easier", "too hard", "too difficult",
	}},
	{LangPT, []string{
		"ajustar", "ajusta", "ajuste", "mudar", "muda", "alterar", "pode ajustar",
		"pode mudar", "mais fácil", "mais facil", "muito difícil", "muito dificil",
	}},
}

var yesPhrases = []phraseSet{
	{LangEN, []string{
		"yes", "y", "yep", "yeah", "yup", "sure", "confirm", "confirmed", "correct",
		"of course", "absolutely", "that's right",
	}},
	{LangPT, []string{
		"sim", "s", "claro", "isso", "confirmo", "com certeza", "certo", "aham", "pode marcar",
	}},
}

var noPhrases = []phraseSet{
	{LangEN, []string{
		"no", "n", "nope", "nah", "not yet", "wait", "not really",
	}},
	{LangPT, []string{
		"não", "nao", "ainda não", "ainda nao", "negativo", "espera", "calma",
	}},
}

func init() {
	for _, sets := range [][]phraseSet{completedPhrases, couldntPhrases, adjustPhrases, yesPhrases, noPhrases} {
		for i := range sets {
			for j, p := range sets[i].Phrases {
				sets[i].Phrases[j] = foldAccents(p)
			}
		}
	}
}
