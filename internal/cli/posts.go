package cli

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tmoreaux/detectlab/internal/posts"
	"github.com/tmoreaux/detectlab/internal/validate"
)

var (
	postsFile string
	planSeed  int64
)

// postsCmd represents the posts command
var postsCmd = &cobra.Command{
	Use:   "posts",
	Short: "Work with the prepared post corpus",
}

func loadCorpus() (*posts.Corpus, error) {
	path := postsFile
	if path == "" {
		path = cfg.Posts.Path
	}
	if path == "" {
		return nil, fmt.Errorf("no corpus file configured (use --file or posts.path)")
	}
	return posts.Load(path)
}

var postsPlanCmd = &cobra.Command{
	Use:   "plan",
	Short: "Print a shuffled presentation order with variant assignments",
	Long: `Plan shuffles the corpus and assigns each post an AI or Human variant,
producing the tab order for one participant session.

Example:
  detectlab posts plan --file posts.yaml --seed 42`,
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := loadCorpus()
		if err != nil {
			return err
		}

		seed := planSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		r := rand.New(rand.NewSource(seed))

		fmt.Printf("# seed %d\n", seed)
		for i, p := range corpus.Shuffled(r) {
			variant := "human"
			if posts.AssignVariant(r) {
				variant = "ai"
			}
			fmt.Printf("%2d  %-7s %s\n", i+1, variant, p.URLMatch)
		}
		return nil
	},
}

var postsCheckCmd = &cobra.Command{
	Use:   "check <html-file>",
	Short: "Verify corpus snippets match a saved page",
	Long: `Check parses a saved HTML page and reports, for each corpus post whose
urlMatch applies, whether its content snippet locates exactly one element.

Example:
  detectlab posts check saved_page.html --url https://forum.example/post/1`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := loadCorpus()
		if err != nil {
			return err
		}

		pageURL, _ := cmd.Flags().GetString("url")
		if pageURL == "" {
			return fmt.Errorf("--url is required")
		}

		post := corpus.Find(pageURL)
		if post == nil {
			return fmt.Errorf("no corpus entry matches %s", pageURL)
		}

		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()

		m, err := posts.MatchInDocument(f, post.ContentSnippet)
		if err != nil {
			return err
		}
		fmt.Printf("OK: snippet found in <%s> (%d chars)\n", m.Tag, len(m.Text))
		return nil
	},
}

var (
	validateURLs    bool
	validateTimeout time.Duration
)

var postsValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the corpus for problems before a session",
	Long: `Validate runs structural checks over the corpus (missing snippets,
duplicate URL matches, unparsable stored responses) and, with --urls,
probes each absolute post URL over HTTP.

Example:
  detectlab posts validate --file posts.yaml
  detectlab posts validate --urls`,
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, err := loadCorpus()
		if err != nil {
			return err
		}

		v := validate.NewValidator(validateTimeout, 5, "", "", "")
		issues := v.Check(corpus)
		if validateURLs {
			issues = append(issues, v.CheckURLs(cmd.Context(), corpus)...)
		}

		errors := 0
		for _, issue := range issues {
			if issue.Severity == validate.SeverityError {
				errors++
			}
			fmt.Printf("%-7s %s: %s\n", issue.Severity, issue.Post, issue.Message)
		}

		if errors > 0 {
			return fmt.Errorf("%d error(s) in corpus", errors)
		}
		fmt.Printf("Corpus OK: %d posts, %d warning(s)\n", len(corpus.Posts), len(issues)-errors)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(postsCmd)
	postsCmd.AddCommand(postsPlanCmd)
	postsCmd.AddCommand(postsCheckCmd)
	postsCmd.AddCommand(postsValidateCmd)

	postsCmd.PersistentFlags().StringVar(&postsFile, "file", "", "corpus file (overrides posts.path)")
	postsPlanCmd.Flags().Int64Var(&planSeed, "seed", 0, "shuffle seed (default: time-based)")
	postsCheckCmd.Flags().String("url", "", "page URL to match against the corpus")
	postsValidateCmd.Flags().BoolVar(&validateURLs, "urls", false, "also probe post URLs over HTTP")
	postsValidateCmd.Flags().DurationVar(&validateTimeout, "timeout", 10*time.Second, "per-request timeout for URL probes")
}
