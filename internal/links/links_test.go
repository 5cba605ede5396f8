package links

import "testing"

const id = "1AbCdEfGhIjKlMnOpQrStUvWxYz_-9"

func Test_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "file view link",
			in:   "https://drive.google.com/file/d/" + id + "/view?usp=sharing",
			want: DirectContentBase + id,
		},
		{
			name: "open link with id query",
			in:   "https://drive.google.com/open?id=" + id,
			want: DirectContentBase + id,
		},
		{
			name: "uc export link",
			in:   "https://drive.google.com/uc?export=view&id=" + id,
			want: DirectContentBase + id,
		},
		{
			name: "file path on other host",
			in:   "https://mirror.example.com/file/d/" + id + "/view",
			want: DirectContentBase + id,
		},
		{
			name: "drive link with short id",
			in:   "https://drive.google.com/open?id=short",
			want: "https://drive.google.com/open?id=short",
		},
		{
			name: "unrelated long token",
			in:   "https://cdn.example.com/" + id + ".png",
			want: "https://cdn.example.com/" + id + ".png",
		},
		{
			name: "empty",
			in:   "",
			want: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Normalize(tt.in); got != tt.want {
				t.Errorf("Normalize() = %v, want %v", got, tt.want)
			}
		})
	}
}

func Test_Normalize_Idempotent(t *testing.T) {
	once := Normalize("https://drive.google.com/file/d/" + id + "/view")
	if twice := Normalize(once); twice != once {
		t.Errorf("Normalize is not idempotent: %q -> %q", once, twice)
	}
}
