package llm

import "strings"

// Fixed collaborator payloads. The evaluation prompt is the exact French
// instruction set used for the study; do not reword it between runs or the
// collected judgements stop being comparable.

// ExtractionPrompt asks the model to OCR a screenshot region.
const ExtractionPrompt = "Extract the text from this image. Respond with only the text content, with no extra commentary or formatting."

// The prompt body uses ''' as a stand-in for markdown code fences, since Go
// raw string literals cannot contain backticks.
var evaluationPromptTemplate = strings.ReplaceAll(`
Tu es un spécialiste de l’analyse de textes écrits. Ton objectif n’est pas de deviner l’origine du texte, mais de produire un « Rapport d’analyse du texte » clair et détaillé, basé uniquement sur des indices visibles dans l’écriture.

Tu dois analyser le texte comme le ferait un expert, mais en utilisant des termes compréhensibles par n’importe quel lecteur francophone, sans jargon technique.

### Ta mission :
1. Analyser le texte selon les trois dimensions suivantes :

   - **Variété et naturel de l’écriture**
     (longueur et rythme des phrases, alternance entre phrases courtes et longues, impression de spontanéité)

   - **Prévisibilité du langage**
     (choix des mots, formules attendues ou originales, impression de texte « générique » ou au contraire personnel)

   - **Présence d’une voix humaine**
     (subjectivité, émotions, hésitations, style personnel, impression qu’une vraie personne s’exprime)

2. Résumer ces observations et attribuer un score final indiquant la probabilité que le texte ait été généré par une intelligence artificielle.

3. Répondre UNIQUEMENT avec un seul objet JSON valide contenant exactement les clés :
   - "analysis_report"
   - "final_score"

Aucun texte en dehors du JSON n’est autorisé.

---

### EXEMPLE 1 (Texte Humain)
**Contexte :** https://www.reddit.com/r/france/comments/exemple
**Texte à analyser :** "Honnêtement, je pense pas qu’on ait un rôle particulier à jouer. On est là, on vit, on fait ce qu’on peut avec ce qu’on a. Chercher un grand sens à tout ça, j’ai jamais trop compris l’intérêt. Perso, si j’arrive à être un minimum en paix avec moi-même, ça me va."
**Réponse attendue :**
'''json
{
  "analysis_report": "**Variété et naturel de l’écriture :** Le texte alterne entre phrases moyennes et phrases plus courtes, avec un rythme irrégulier qui évoque une réflexion spontanée. L’ensemble n’est pas excessivement structuré.\n**Prévisibilité du langage :** Le vocabulaire est simple mais personnel. Certaines formulations sont peu formelles et ne suivent pas un schéma attendu, ce qui rend le texte moins prévisible.\n**Présence d’une voix humaine :** Le texte exprime clairement une opinion personnelle, avec des nuances et une prise de distance. Le ton est réfléchi mais naturel, donnant l’impression d’un message écrit sans calcul particulier.",
  "final_score": {
    "probability": 0.2,
    "conclusion": "Le texte présente de forts indices d’une écriture humaine, notamment par son ton personnel, son rythme irrégulier et l’expression d’un point de vue nuancé."
  }
}
'''

---

### EXEMPLE 2 (Texte Généré par IA)
**Contexte :** https://www.reddit.com/r/france/comments/exemple
**Texte à analyser :** "Franchement, le sens de la vie, j’ai toujours trouvé que c’était une question un peu surcotée. On est là par hasard, on vit, puis voilà. Certains vont dire que le bonheur c’est la clé, mais au fond, dans quelques décennies, tout ça n’aura plus vraiment d’importance. Du coup, j’essaie juste de faire avec et de pas trop me prendre la tête."
**Réponse attendue :**
'''json
{
  "analysis_report": "**Variété et naturel de l’écriture :** Le texte adopte un rythme assez fluide, mais les phrases restent relativement homogènes dans leur construction. L’ensemble donne une impression de naturel maîtrisé.\n**Prévisibilité du langage :** Plusieurs formulations sont générales et pourraient s’appliquer à de nombreux contextes similaires. Les idées s’enchaînent de manière logique mais attendue.\n**Présence d’une voix humaine :** Le texte imite une réflexion personnelle, mais sans détails précis ni vécu concret. La voix semble plausible, mais reste peu marquée et relativement neutre émotionnellement.",
  "final_score": {
    "probability": 0.7,
    "conclusion": "Le texte reprend les codes d’un message personnel, mais l’absence de détails spécifiques et l’enchaînement très lisse des idées suggèrent une génération automatique."
  }
}
'''

---

### EXEMPLE 3 (Texte Humain Très Soigné)
**Contexte :** https://www.reddit.com/r/france/comments/exemple
**Texte à analyser :** "Peut-être que le problème vient du fait qu’on cherche absolument un sens global à quelque chose qui n’en a pas. L’existence, prise individuellement, n’a rien d’extraordinaire, et pourtant on continue d’y projeter des attentes immenses. Accepter cette banalité est sans doute plus difficile qu’il n’y paraît."
**Réponse attendue :**
'''json
{
  "analysis_report": "**Variété et naturel de l’écriture :** Les phrases sont longues et bien construites, avec une structure maîtrisée, mais suffisamment variée pour rester fluide.\n**Prévisibilité du langage :** Le vocabulaire est précis et les formulations sont travaillées, avec des enchaînements d’idées moins attendus que dans un texte générique.\n**Présence d’une voix humaine :** Le texte exprime une réflexion personnelle approfondie et un point de vue identifiable. Malgré un style soigné, la voix de l’auteur reste perceptible.",
  "final_score": {
    "probability": 0.3,
    "conclusion": "Bien que très rédigé, le texte montre des indices clairs d’écriture humaine, notamment par la profondeur de la réflexion et la cohérence du point de vue."
  }
}
'''

---

### EXEMPLE 4 (Texte ambigu (humain ou IA difficile à distinguer))
**Contexte :** https://www.reddit.com/r/france/comments/exemple
**Texte à analyser :** "La vraie richesse, au final, c’est pas forcément ce qu’on possède. C’est plutôt les petits moments, les souvenirs qui restent. Un message inattendu, un rappel du passé… rien de fou, mais ça fait réfléchir. Après, chacun voit midi à sa porte."
**Réponse attendue :**
'''json
{
  "analysis_report": "**Variété et naturel de l’écriture :** Le texte est fluide et agréable à lire, mais la longueur et la structure des phrases restent assez régulières.\n**Prévisibilité du langage :** Les idées exprimées sont communes et les formulations restent relativement générales, ce qui les rend facilement anticipables.\n**Présence d’une voix humaine :** Une voix personnelle est suggérée, mais elle reste peu incarnée. Le texte manque de détails concrets qui permettraient d’identifier clairement un vécu réel.",
  "final_score": {
    "probability": 0.5,
    "conclusion": "Le texte se situe dans une zone d’incertitude. Il pourrait aussi bien correspondre à une réflexion humaine simple qu’à un texte généré cherchant à imiter un style personnel."
  }
}
'''
---

## ATTENTION! certains textes générés automatiquement peuvent volontairement imiter un style oral, hésitant ou très personnel. Ces éléments ne suffisent pas, à eux seuls, à conclure à une écriture humaine.

### Début de ton analyse :

Contexte visuel : utilise la capture d’écran de la page web pour comprendre le style visuel, la mise en page et le contexte dans lequel le texte apparaît.

URL de contexte : {{PAGE_URL}}

Texte à analyser :
"{{TEXT}}"

### Règles de réponse STRICTES :
- L’intégralité de "analysis_report" doit être rédigée en français clair et accessible
- Le ton doit être neutre, explicatif et factuel
- Ne jamais utiliser de termes techniques ou académiques
- Ne pas mentionner de modèles, d’IA spécifique ou d’outils
- Se baser uniquement sur les caractéristiques visibles du texte

### Réponse attendue :
Un objet JSON strictement valide, et rien d’autre.
`, "'''", "```")

// EvaluationPrompt builds the authorship-analysis instruction for one text,
// anchored to the page the context screenshot was taken from.
func EvaluationPrompt(pageURL, text string) string {
	return strings.NewReplacer(
		"{{PAGE_URL}}", pageURL,
		"{{TEXT}}", text,
	).Replace(evaluationPromptTemplate)
}
