// Package flagsearch embeds the flag similarity search engine in a Go program
// without the HTTP server.
//
// A client loads a corpus built by flagindex (flags.json plus embeddings.npy)
// and ranks query embeddings against it. Text and image queries need an
// encoder that produces vectors in the same space as the corpus.
//
//	client, err := flagsearch.Open(ctx, "data/flags.json",
//	    flagsearch.WithTextEncoder(myCLIP, "clip-vit-b32"),
//	    flagsearch.WithValkey("localhost:6379", ""),
//	)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	matches, err := client.SearchText(ctx, "red circle on white", 8)
//	for _, m := range matches {
//	    fmt.Println(m.Flag.Name, m.Score)
//	}
package flagsearch
